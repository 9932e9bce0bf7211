package service

import (
	"context"
	"fmt"
	"strings"

	"spamfightbot/internal/errors"
	"spamfightbot/internal/metrics"
	"spamfightbot/internal/models"

	"github.com/sirupsen/logrus"
)

// NewPairUsage is sent back verbatim on a malformed /newpair
const NewPairUsage = `Usage: /newpair @front @group

Users entering @group must be in @front, or get kicked.
You must be an admin of @group and add me as an admin in it.
`

const newPairSuccess = "Success!"

// NewPairHandler implements /newpair <front> <group>
type NewPairHandler struct {
	bot    models.User
	chat   ChatActions
	pairs  PairingRegistry
	logger *errors.Logger
}

func NewNewPairHandler(bot models.User, chat ChatActions, pairs PairingRegistry, opts ...Option) *NewPairHandler {
	o := newOptions(opts)
	return &NewPairHandler{
		bot:    bot,
		chat:   chat,
		pairs:  pairs,
		logger: o.logger,
	}
}

// Handle answers a /newpair command in the requester's private chat.
// Inside a group the command is deleted without reply. Network and
// unexpected failures are returned without replying.
func (h *NewPairHandler) Handle(ctx context.Context, msg *models.Message) error {
	h.logger.WithContext(logrus.Fields{
		LogFieldChatID:  msg.Chat.ID,
		LogFieldCommand: msg.Text,
	}).Debug("newpair msg")

	if msg.Chat.Type.IsGroup() {
		err := h.chat.DeleteMessage(ctx, msg.Chat.ID, msg.ID)
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if msg.From == nil {
		return nil
	}

	reply, err := h.evaluate(ctx, msg)
	if err != nil {
		return err
	}
	return h.chat.SendMessage(ctx, msg.From.ID, reply, msg.ID)
}

// evaluate runs the validation chain and returns the reply text. The first
// failing check decides the reply.
func (h *NewPairHandler) evaluate(ctx context.Context, msg *models.Message) (string, error) {
	args := strings.Fields(msg.Text)
	if len(args) != 3 {
		return NewPairUsage, nil
	}
	front, group := args[1], args[2]

	frontChat, err := h.chat.GetChat(ctx, front)
	if err != nil {
		return unavailableReply(front, err)
	}
	groupChat, err := h.chat.GetChat(ctx, group)
	if err != nil {
		return unavailableReply(group, err)
	}

	if !groupChat.Type.IsGroup() {
		return fmt.Sprintf("Error: %s is not a group.", group), nil
	}

	admins, err := h.chat.GetChatAdministrators(ctx, group)
	if err != nil {
		return unavailableReply(group, err)
	}
	if !hasMember(admins, msg.From.ID) {
		return fmt.Sprintf("Error: you are not an admin of %s.", group), nil
	}
	if !hasMember(admins, h.bot.ID) {
		return fmt.Sprintf("Error: I'm not an admin of %s.", group), nil
	}

	if frontChat.Type == models.ChatTypeChannel {
		// the member list of a channel is only visible to its admins
		if _, err := h.chat.GetChatAdministrators(ctx, front); err != nil {
			if !errors.IsRejected(err) {
				return "", err
			}
			return fmt.Sprintf("Error: I'm not an admin of %s %s but I need to be in order to see its members.", frontChat.Type, front), nil
		}
	}

	if err := h.pairs.Pair(ctx, groupChat.ID, frontChat.ID); err != nil {
		return "", err
	}

	metrics.IncrementCounter("pairings_total", nil, "Successful /newpair commands")
	h.logger.WithContext(logrus.Fields{
		LogFieldGroupID:   groupChat.ID,
		LogFieldChatTitle: groupChat.Title,
		LogFieldFrontID:   frontChat.ID,
		LogFieldUserID:    msg.From.ID,
		LogFieldUserName:  msg.From.FullName(),
	}).Infof("Paired %s with front %s", group, front)

	return newPairSuccess, nil
}

// unavailableReply turns an API rejection of ref into the reply text.
// Other failures are returned as errors.
func unavailableReply(ref string, err error) (string, error) {
	if errors.IsRejected(err) {
		return fmt.Sprintf("Error: the chat %s does not exist or is unavailable to me.", ref), nil
	}
	return "", err
}

func hasMember(members []models.ChatMember, userID int64) bool {
	for _, m := range members {
		if m.User.ID == userID {
			return true
		}
	}
	return false
}
