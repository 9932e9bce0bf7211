package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger() (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := NewLogger()
	logger.SetOutput(buf)
	logger.SetLevel(logrus.DebugLevel)
	return logger, buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_LogErrorLiftsContext(t *testing.T) {
	logger, buf := newBufferedLogger()

	err := New(ErrCodeForbidden, "no rights").WithContext("chat_id", -100)
	logger.LogError(err, "Failed to query membership", logrus.Fields{"user_id": 5})

	entry := decodeEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "Failed to query membership", entry["msg"])
	assert.Equal(t, "FORBIDDEN", entry["error_code"])
	assert.Equal(t, float64(-100), entry["chat_id"])
	assert.Equal(t, float64(5), entry["user_id"])
}

func TestLogger_LogWarnPlainError(t *testing.T) {
	logger, buf := newBufferedLogger()

	logger.LogWarn(stderrors.New("plain"), "Something odd")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "plain", entry["error"])
	_, hasCode := entry["error_code"]
	assert.False(t, hasCode)
}

func TestLogger_LogRetryableError(t *testing.T) {
	logger, buf := newBufferedLogger()

	logger.LogRetryableError(NewNetworkError("getChatMember", stderrors.New("timeout")), "Retry me")
	assert.Equal(t, "warning", decodeEntry(t, buf)["level"])

	buf.Reset()
	logger.LogRetryableError(New(ErrCodeBadRequest, "bad"), "Do not retry")
	assert.Equal(t, "error", decodeEntry(t, buf)["level"])
}

func TestFromLogrus(t *testing.T) {
	base := logrus.New()
	assert.Same(t, base, FromLogrus(base).Logger)
	assert.NotNil(t, FromLogrus(nil).Logger)
}
