package telegram

import (
	stderrors "errors"

	"spamfightbot/internal/errors"

	"github.com/mymmrac/telego/telegoapi"
)

// classify maps a telego failure onto the chat API error codes. Anything
// that is not an API answer is a network failure.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *telegoapi.Error
	if stderrors.As(err, &apiErr) {
		return errors.NewChatAPIError(method, apiErr.ErrorCode, apiErr.Description, err)
	}
	return errors.NewNetworkError(method, err)
}
