package service

import (
	"bytes"
	"context"
	"time"

	"spamfightbot/internal/errors"
	"spamfightbot/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

// Mock chat actions
type mockChatActions struct {
	mock.Mock
}

func (m *mockChatActions) SendMessage(ctx context.Context, chatID int64, text string, replyTo int) error {
	args := m.Called(ctx, chatID, text, replyTo)
	return args.Error(0)
}

func (m *mockChatActions) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	args := m.Called(ctx, chatID, messageID)
	return args.Error(0)
}

func (m *mockChatActions) GetChat(ctx context.Context, ref string) (*models.Chat, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *mockChatActions) GetChatAdministrators(ctx context.Context, ref string) ([]models.ChatMember, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMember), args.Error(1)
}

func (m *mockChatActions) GetChatMember(ctx context.Context, chatID, userID int64) (*models.ChatMember, error) {
	args := m.Called(ctx, chatID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMember), args.Error(1)
}

func (m *mockChatActions) BanChatMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	args := m.Called(ctx, chatID, userID, until)
	return args.Error(0)
}

func (m *mockChatActions) LeaveChat(ctx context.Context, chatID int64) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

// Mock pairing registry, used where store failures need injecting
type mockPairingRegistry struct {
	mock.Mock
}

func (m *mockPairingRegistry) Pair(ctx context.Context, groupID, frontID int64) error {
	args := m.Called(ctx, groupID, frontID)
	return args.Error(0)
}

func (m *mockPairingRegistry) Lookup(ctx context.Context, groupID int64) (int64, bool, error) {
	args := m.Called(ctx, groupID)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockPairingRegistry) Unpair(ctx context.Context, groupID int64) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func (m *mockPairingRegistry) IsKnownFront(ctx context.Context, chatID int64) (bool, error) {
	args := m.Called(ctx, chatID)
	return args.Bool(0), args.Error(1)
}

// Mock message handler
type mockMessageHandler struct {
	mock.Mock
}

func (m *mockMessageHandler) HandleMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestLogger() (*errors.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	return errors.FromLogrus(logger), &buf
}

func notFoundErr() error {
	return errors.NewChatAPIError("deleteMessage", 400, "Bad Request: message to delete not found", nil)
}

func forbiddenErr() error {
	return errors.NewChatAPIError("getChatMember", 403, "Forbidden: bot is not a member of the channel chat", nil)
}

func chatNotFoundErr() error {
	return errors.NewChatAPIError("getChat", 400, "Bad Request: chat not found", nil)
}

func badRequestErr() error {
	return errors.NewChatAPIError("getChatAdministrators", 400, "Bad Request: member list is inaccessible", nil)
}

func networkErr() error {
	return errors.NewNetworkError("getChatMember", context.DeadlineExceeded)
}

func memberWithStatus(userID int64, status models.MemberStatus) *models.ChatMember {
	return &models.ChatMember{User: models.User{ID: userID}, Status: status}
}
