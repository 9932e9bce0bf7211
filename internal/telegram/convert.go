package telegram

import (
	"strconv"
	"strings"
	"time"

	"spamfightbot/internal/models"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// chatRef turns a typed reference into a ChatID. Numeric refs are ids,
// anything else is a public @handle.
func chatRef(ref string) telego.ChatID {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return tu.ID(id)
	}
	if !strings.HasPrefix(ref, "@") {
		ref = "@" + ref
	}
	return tu.Username(ref)
}

func convertUser(u telego.User) models.User {
	return models.User{
		ID:        u.ID,
		IsBot:     u.IsBot,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
	}
}

func convertChat(c telego.Chat) models.Chat {
	return models.Chat{
		ID:       c.ID,
		Type:     models.ChatType(c.Type),
		Title:    c.Title,
		Username: c.Username,
	}
}

func convertChatFullInfo(c *telego.ChatFullInfo) *models.Chat {
	return &models.Chat{
		ID:       c.ID,
		Type:     models.ChatType(c.Type),
		Title:    c.Title,
		Username: c.Username,
	}
}

func convertMember(m telego.ChatMember) models.ChatMember {
	return models.ChatMember{
		User:   convertUser(m.MemberUser()),
		Status: models.MemberStatus(m.MemberStatus()),
	}
}

func convertMessage(m *telego.Message) models.Message {
	msg := models.Message{
		ID:   m.MessageID,
		Chat: convertChat(m.Chat),
		Text: m.Text,
		Date: time.Unix(m.Date, 0),
	}
	if m.From != nil {
		from := convertUser(*m.From)
		msg.From = &from
	}
	if m.LeftChatMember != nil {
		left := convertUser(*m.LeftChatMember)
		msg.LeftChatMember = &left
	}
	if len(m.NewChatMembers) > 0 {
		msg.NewChatMembers = make([]models.User, 0, len(m.NewChatMembers))
		for _, u := range m.NewChatMembers {
			msg.NewChatMembers = append(msg.NewChatMembers, convertUser(u))
		}
	}
	return msg
}
