package service

import (
	"context"
	"fmt"
	"time"

	"spamfightbot/internal/errors"
	"spamfightbot/internal/expiring"
	"spamfightbot/internal/metrics"
	"spamfightbot/internal/models"

	"github.com/sirupsen/logrus"
)

// ModeratorConfig holds the registry and ban timings
type ModeratorConfig struct {
	PendingTTL      time.Duration
	JustBannedTTL   time.Duration
	RegistryMaxSize int
	BanDuration     time.Duration
}

// Moderator applies the front membership policy to every message seen in a
// group. It owns the pending and just-banned registries and must only be
// driven from a single goroutine.
type Moderator struct {
	bot         models.User
	chat        ChatActions
	pairs       PairingRegistry
	membership  *MembershipChecker
	pending     *expiring.Registry[[]int]
	justBanned  *expiring.Registry[bool]
	banDuration time.Duration
	now         func() time.Time
	logger      *errors.Logger
}

// NewModerator creates a moderator acting as bot
func NewModerator(bot models.User, chat ChatActions, pairs PairingRegistry, membership *MembershipChecker, config ModeratorConfig, opts ...Option) (*Moderator, error) {
	o := newOptions(opts)

	pending, err := expiring.New[[]int](config.PendingTTL, config.RegistryMaxSize, expiring.WithClock(o.now))
	if err != nil {
		return nil, fmt.Errorf("failed to create pending registry: %w", err)
	}
	justBanned, err := expiring.New[bool](config.JustBannedTTL, config.RegistryMaxSize, expiring.WithClock(o.now))
	if err != nil {
		return nil, fmt.Errorf("failed to create just-banned registry: %w", err)
	}

	return &Moderator{
		bot:         bot,
		chat:        chat,
		pairs:       pairs,
		membership:  membership,
		pending:     pending,
		justBanned:  justBanned,
		banDuration: config.BanDuration,
		now:         o.now,
		logger:      o.logger,
	}, nil
}

// HandleMessage moderates one group message. Failures are resolved here:
// a chat that answers with an unexpected API error is left and unpaired.
// Only context cancellation is returned to the caller.
func (m *Moderator) HandleMessage(ctx context.Context, msg *models.Message) error {
	err := m.moderate(ctx, msg)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	fields := chatFields(msg.Chat)
	fields[LogFieldMessageID] = msg.ID
	fields[LogFieldErrorCode] = errors.GetCode(err)

	switch {
	case errors.IsNotFound(err):
		m.logger.WithContext(fields).WithError(err).Debug("Ignoring already resolved chat state")
	case errors.IsNetwork(err):
		metrics.IncrementCounter("moderation_failures_total", map[string]string{"kind": "network"}, "Messages whose moderation was aborted")
		m.logger.LogWarn(err, "Aborted moderation after a network failure", fields)
	case errors.IsStorage(err):
		metrics.IncrementCounter("moderation_failures_total", map[string]string{"kind": "storage"}, "Messages whose moderation was aborted")
		m.logger.LogError(err, "Aborted moderation after a store failure", fields)
	case errors.IsChatAPI(err):
		metrics.IncrementCounter("moderation_failures_total", map[string]string{"kind": "chat_api"}, "Messages whose moderation was aborted")
		m.logger.LogError(err, "Chat API failure, leaving chat", fields)
		m.leave(ctx, msg.Chat, "broken")
	default:
		metrics.IncrementCounter("moderation_failures_total", map[string]string{"kind": "internal"}, "Messages whose moderation was aborted")
		m.logger.LogError(err, "Unexpected moderation failure", fields)
	}
	return nil
}

func (m *Moderator) moderate(ctx context.Context, msg *models.Message) error {
	key := expiring.Key{UserID: msg.SenderID(), ChatID: msg.Chat.ID}

	m.justBanned.Expire()
	if m.justBanned.Contains(key) {
		metrics.IncrementCounter("messages_deleted_total", map[string]string{"reason": "just_banned"}, "Messages deleted by the bot")
		return m.chat.DeleteMessage(ctx, msg.Chat.ID, msg.ID)
	}

	m.pending.Expire()
	m.pending.Update(key, func(ids []int) []int {
		return append(ids, msg.ID)
	})

	if left := msg.LeftChatMember; left != nil {
		switch {
		case left.ID == m.bot.ID:
			m.logger.WithContext(chatFields(msg.Chat)).Infof("Leaving %s (%d)", msg.Chat.Title, msg.Chat.ID)
			metrics.IncrementCounter("chats_left_total", map[string]string{"reason": "removed"}, "Chats the bot left or was removed from")
			if err := m.pairs.Unpair(ctx, msg.Chat.ID); err != nil {
				return err
			}
		case msg.SenderID() == m.bot.ID:
			// the notice of our own removal action
			metrics.IncrementCounter("messages_deleted_total", map[string]string{"reason": "removal_notice"}, "Messages deleted by the bot")
			if err := m.chat.DeleteMessage(ctx, msg.Chat.ID, msg.ID); err != nil {
				return err
			}
		}
	}

	leftChat := false
	for _, user := range msg.NewChatMembers {
		if user.IsBot {
			continue
		}
		stop, err := m.handleJoin(ctx, msg, user, &leftChat)
		if err != nil || stop {
			return err
		}
	}
	return nil
}

// handleJoin applies the policy to one joined user. stop reports that the
// rest of the message must not be processed. leftChat is shared by the
// members of one message so an unknown group is left only once.
func (m *Moderator) handleJoin(ctx context.Context, msg *models.Message, user models.User, leftChat *bool) (stop bool, err error) {
	fields := chatFields(msg.Chat)
	fields[LogFieldUserID] = user.ID
	fields[LogFieldUserName] = user.FullName()

	m.logger.WithContext(fields).Infof("new user: %s (%d)", user.FullName(), user.ID)
	metrics.IncrementCounter("joins_total", nil, "Users seen joining a group")

	frontID, paired, err := m.pairs.Lookup(ctx, msg.Chat.ID)
	if err != nil {
		return false, err
	}
	if !paired {
		known, err := m.pairs.IsKnownFront(ctx, msg.Chat.ID)
		if err != nil {
			return false, err
		}
		if known || *leftChat {
			return false, nil
		}
		*leftChat = true
		return false, m.leaveUnknown(ctx, msg.Chat)
	}
	fields[LogFieldFrontID] = frontID

	if inviter := msg.From; inviter != nil && inviter.ID != user.ID {
		m.logInvite(ctx, msg.Chat, user, *inviter)
		return false, nil
	}

	key := expiring.Key{UserID: user.ID, ChatID: msg.Chat.ID}
	m.pending.Set(key, []int{})

	isMember, err := m.membership.IsMember(ctx, frontID, user.ID)
	switch {
	case errors.IsForbidden(err):
		m.logger.LogWarn(err, fmt.Sprintf("Insufficient permissions for %d for group %s", frontID, msg.Chat.Title), fields)
		return true, nil
	case err != nil:
		m.logger.LogWarn(err, "Membership query failed, letting user in", fields)
		isMember = true
	}

	if isMember {
		m.pending.Delete(key)
		metrics.IncrementCounter("joins_accepted_total", nil, "Self-joins by front members")
		m.logger.WithContext(fields).Infof("%s joined", user.FullName())
		return false, nil
	}
	return false, m.removeUser(ctx, msg, user, fields)
}

// removeUser bans a self-joined non-member for the ban duration and
// retracts the join notice plus everything they sent meanwhile
func (m *Moderator) removeUser(ctx context.Context, msg *models.Message, user models.User, fields logrus.Fields) error {
	key := expiring.Key{UserID: user.ID, ChatID: msg.Chat.ID}
	m.justBanned.Set(key, true)

	until := m.now().Add(m.banDuration)
	if err := m.chat.BanChatMember(ctx, msg.Chat.ID, user.ID, until); err != nil {
		return err
	}
	metrics.IncrementCounter("users_banned_total", nil, "Self-joined non-members removed")
	m.logger.WithContext(fields).Infof("Removed %s", user.FullName())

	if err := m.deleteIfPresent(ctx, msg.Chat.ID, msg.ID, "join_notice"); err != nil {
		return err
	}

	ids, _ := m.pending.Pop(key)
	for _, id := range ids {
		if id == msg.ID {
			continue
		}
		if err := m.deleteIfPresent(ctx, msg.Chat.ID, id, "pending"); err != nil {
			return err
		}
	}
	return nil
}

// deleteIfPresent deletes a message, treating "not found" as success
func (m *Moderator) deleteIfPresent(ctx context.Context, chatID int64, messageID int, reason string) error {
	err := m.chat.DeleteMessage(ctx, chatID, messageID)
	if errors.IsNotFound(err) {
		m.logger.WithContext(logrus.Fields{
			LogFieldChatID:    chatID,
			LogFieldMessageID: messageID,
		}).Debug("Message already deleted")
		return nil
	}
	if err == nil {
		metrics.IncrementCounter("messages_deleted_total", map[string]string{"reason": reason}, "Messages deleted by the bot")
	}
	return err
}

func (m *Moderator) logInvite(ctx context.Context, chat models.Chat, user, inviter models.User) {
	fields := chatFields(chat)
	fields[LogFieldUserID] = user.ID
	fields[LogFieldInviterID] = inviter.ID

	inviterIsMember, err := m.membership.IsMember(ctx, chat.ID, inviter.ID)
	if err != nil {
		m.logger.WithContext(fields).WithError(err).Debug("Could not check inviter membership")
	} else {
		fields["inviter_is_member"] = inviterIsMember
	}
	metrics.IncrementCounter("joins_invited_total", nil, "Users added by someone else")
	m.logger.WithContext(fields).Infof("%s joined by %s", user.FullName(), inviter.FullName())
}

func (m *Moderator) leaveUnknown(ctx context.Context, chat models.Chat) error {
	m.logger.WithContext(chatFields(chat)).Infof("Leaving %s (%d)", chat.Title, chat.ID)
	metrics.IncrementCounter("chats_left_total", map[string]string{"reason": "unpaired"}, "Chats the bot left or was removed from")
	return m.chat.LeaveChat(ctx, chat.ID)
}

// leave removes the bot from a chat it can no longer work in and forgets
// its pairing. Failures are only logged.
func (m *Moderator) leave(ctx context.Context, chat models.Chat, reason string) {
	fields := chatFields(chat)
	m.logger.WithContext(fields).Infof("Leaving %s (%d)", chat.Title, chat.ID)
	metrics.IncrementCounter("chats_left_total", map[string]string{"reason": reason}, "Chats the bot left or was removed from")

	if err := m.chat.LeaveChat(ctx, chat.ID); err != nil {
		m.logger.LogError(err, "Failed to leave chat", fields)
	}
	if err := m.pairs.Unpair(ctx, chat.ID); err != nil {
		m.logger.LogError(err, "Failed to unpair chat", fields)
	}
}

func chatFields(chat models.Chat) logrus.Fields {
	return logrus.Fields{
		LogFieldChatID:    chat.ID,
		LogFieldChatTitle: chat.Title,
	}
}
