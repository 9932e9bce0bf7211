package service

import (
	"context"
	"time"

	"spamfightbot/internal/models"
)

// ChatActions defines the outbound Bot API operations the bot needs.
// Failures are classified into the chat API error codes of internal/errors.
type ChatActions interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	// ref is a numeric chat id or an @handle
	GetChat(ctx context.Context, ref string) (*models.Chat, error)
	GetChatAdministrators(ctx context.Context, ref string) ([]models.ChatMember, error)
	GetChatMember(ctx context.Context, chatID, userID int64) (*models.ChatMember, error)
	BanChatMember(ctx context.Context, chatID, userID int64, until time.Time) error
	LeaveChat(ctx context.Context, chatID int64) error
}

// PairingRegistry defines the pairing operations used by the handlers
type PairingRegistry interface {
	Pair(ctx context.Context, groupID, frontID int64) error
	Lookup(ctx context.Context, groupID int64) (int64, bool, error)
	Unpair(ctx context.Context, groupID int64) error
	IsKnownFront(ctx context.Context, chatID int64) (bool, error)
}

// MessageHandler processes one inbound message
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *models.Message) error
}
