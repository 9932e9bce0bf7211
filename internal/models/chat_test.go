package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser_FullName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"first and last", User{FirstName: "Ada", LastName: "Lovelace"}, "Ada Lovelace"},
		{"first only", User{FirstName: "Ada"}, "Ada"},
		{"last only", User{LastName: "Lovelace"}, "Lovelace"},
		{"empty", User{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.FullName())
		})
	}
}

func TestMemberStatus_IsMember(t *testing.T) {
	assert.True(t, MemberStatusMember.IsMember())
	assert.True(t, MemberStatusCreator.IsMember())
	assert.True(t, MemberStatusAdministrator.IsMember())

	assert.False(t, MemberStatusRestricted.IsMember())
	assert.False(t, MemberStatusLeft.IsMember())
	assert.False(t, MemberStatusKicked.IsMember())
	assert.False(t, MemberStatus("").IsMember())
}

func TestChatType_IsGroup(t *testing.T) {
	assert.True(t, ChatTypeGroup.IsGroup())
	assert.True(t, ChatTypeSupergroup.IsGroup())
	assert.False(t, ChatTypeChannel.IsGroup())
	assert.False(t, ChatTypePrivate.IsGroup())
}

func TestMessage_SenderID(t *testing.T) {
	msg := &Message{}
	assert.Equal(t, int64(0), msg.SenderID())

	msg.From = &User{ID: 42}
	assert.Equal(t, int64(42), msg.SenderID())
}
