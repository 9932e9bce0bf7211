package models

import (
	"strings"
	"time"
)

// ChatType is the kind of a Telegram chat
type ChatType string

const (
	ChatTypePrivate    ChatType = "private"
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
)

// IsGroup reports whether the chat type is a group or a supergroup
func (t ChatType) IsGroup() bool {
	return t == ChatTypeGroup || t == ChatTypeSupergroup
}

// MemberStatus is a user's status inside a chat
type MemberStatus string

const (
	MemberStatusCreator       MemberStatus = "creator"
	MemberStatusAdministrator MemberStatus = "administrator"
	MemberStatusMember        MemberStatus = "member"
	MemberStatusRestricted    MemberStatus = "restricted"
	MemberStatusLeft          MemberStatus = "left"
	MemberStatusKicked        MemberStatus = "kicked"
)

// IsMember reports whether the status proves membership.
// Restricted users are not counted.
func (s MemberStatus) IsMember() bool {
	switch s {
	case MemberStatusMember, MemberStatusCreator, MemberStatusAdministrator:
		return true
	default:
		return false
	}
}

// User is a Telegram account
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// FullName joins the non-empty parts of the user's display name
func (u User) FullName() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{u.FirstName, u.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Chat is a Telegram chat as seen by the bot
type Chat struct {
	ID       int64    `json:"id"`
	Type     ChatType `json:"type"`
	Title    string   `json:"title,omitempty"`
	Username string   `json:"username,omitempty"`
}

// ChatMember pairs a user with their status in some chat
type ChatMember struct {
	User   User         `json:"user"`
	Status MemberStatus `json:"status"`
}

// Message is an inbound chat message. A single message can report both
// departed and newly joined members.
type Message struct {
	ID             int       `json:"message_id"`
	Chat           Chat      `json:"chat"`
	From           *User     `json:"from,omitempty"`
	Text           string    `json:"text,omitempty"`
	Date           time.Time `json:"date"`
	NewChatMembers []User    `json:"new_chat_members,omitempty"`
	LeftChatMember *User     `json:"left_chat_member,omitempty"`
}

// SenderID returns the sender's id, or 0 for anonymous channel posts
func (m *Message) SenderID() int64 {
	if m.From == nil {
		return 0
	}
	return m.From.ID
}

// Pair is one group to front association
type Pair struct {
	GroupID int64 `json:"group_id"`
	FrontID int64 `json:"front_id"`
}
