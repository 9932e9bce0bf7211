package service

import (
	"context"

	"spamfightbot/internal/errors"
	"spamfightbot/internal/metrics"
	"spamfightbot/internal/retry"

	"github.com/sirupsen/logrus"
)

// MembershipChecker queries a user's status in a chat, retrying transient
// network failures immediately
type MembershipChecker struct {
	chat     ChatActions
	attempts int
	logger   *errors.Logger
}

func NewMembershipChecker(chat ChatActions, attempts int, opts ...Option) *MembershipChecker {
	o := newOptions(opts)
	return &MembershipChecker{
		chat:     chat,
		attempts: attempts,
		logger:   o.logger,
	}
}

// IsMember reports whether user is a member, creator or administrator of
// chat. Only network errors are retried; everything else is returned on
// the first failure.
func (m *MembershipChecker) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	fields := logrus.Fields{
		LogFieldChatID: chatID,
		LogFieldUserID: userID,
	}

	backoff := retry.NewBackoff(retry.ImmediateConfig(m.attempts)).OnRetry(func(attempt int, err error) {
		metrics.IncrementCounter("membership_query_retries_total", nil, "Membership queries retried after a network error")
		m.logger.WithError(err).WithFields(fields).WithField(LogFieldAttempt, attempt).Debug("Retrying membership query")
	})

	var (
		attempts int
		isMember bool
	)
	err := backoff.RetryWithPredicate(ctx, func() error {
		attempts++
		member, err := m.chat.GetChatMember(ctx, chatID, userID)
		if err != nil {
			return err
		}
		m.logger.WithContext(fields).WithField("status", member.Status).Debug("ChatMember status")
		isMember = member.Status.IsMember()
		return nil
	}, errors.IsNetwork)

	if err != nil {
		if errors.IsNetwork(err) && attempts >= backoff.MaxAttempts() {
			m.logger.LogError(err, "Membership query failed after all attempts", fields)
		}
		return false, err
	}
	return isMember, nil
}
