package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"spamfightbot/internal/errors"
	"spamfightbot/internal/expiring"
	"spamfightbot/internal/models"
	"spamfightbot/internal/pairing"
	"spamfightbot/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testBotID   int64 = 999
	testFrontID int64 = -1001
	testGroupID int64 = -2002
	testUserID  int64 = 42
	testAdminID int64 = 7
)

var (
	testBot   = models.User{ID: testBotID, IsBot: true, FirstName: "SpamFightBot", Username: "spamfightbot"}
	testUser  = models.User{ID: testUserID, FirstName: "Buy", LastName: "Followers"}
	testAdmin = models.User{ID: testAdminID, FirstName: "Alice"}
	testGroup = models.Chat{ID: testGroupID, Type: models.ChatTypeSupergroup, Title: "Group"}
)

func testModeratorConfig() ModeratorConfig {
	return ModeratorConfig{
		PendingTTL:      300 * time.Second,
		JustBannedTTL:   50 * time.Second,
		RegistryMaxSize: 100,
		BanDuration:     60 * time.Second,
	}
}

type moderatorFixture struct {
	chat  *mockChatActions
	pairs *pairing.Registry
	clock *fakeClock
	mod   *Moderator
	logs  *bytes.Buffer
}

func newModeratorFixture(t *testing.T) *moderatorFixture {
	t.Helper()

	chat := new(mockChatActions)
	pairs := pairing.NewRegistry(storage.NewMemoryStore())
	clock := newFakeClock()
	logger, logs := newTestLogger()

	membership := NewMembershipChecker(chat, 3, WithLogger(logger))
	mod, err := NewModerator(testBot, chat, pairs, membership, testModeratorConfig(),
		WithClock(clock.Now), WithLogger(logger))
	require.NoError(t, err)

	return &moderatorFixture{chat: chat, pairs: pairs, clock: clock, mod: mod, logs: logs}
}

func (f *moderatorFixture) pair(t *testing.T) {
	t.Helper()
	require.NoError(t, f.pairs.Pair(context.Background(), testGroupID, testFrontID))
}

func joinMessage(id int, from models.User, joined ...models.User) *models.Message {
	return &models.Message{
		ID:             id,
		Chat:           testGroup,
		From:           &from,
		NewChatMembers: joined,
	}
}

func textMessage(id int, from models.User, text string) *models.Message {
	return &models.Message{
		ID:   id,
		Chat: testGroup,
		From: &from,
		Text: text,
	}
}

func userKey(userID int64) expiring.Key {
	return expiring.Key{UserID: userID, ChatID: testGroupID}
}

func TestNewModerator_InvalidConfig(t *testing.T) {
	chat := new(mockChatActions)
	_, err := NewModerator(testBot, chat, new(mockPairingRegistry), NewMembershipChecker(chat, 3), ModeratorConfig{})
	assert.Error(t, err)
}

func TestModerator_UnknownGroupIsLeft(t *testing.T) {
	f := newModeratorFixture(t)
	ctx := context.Background()

	f.chat.On("LeaveChat", mock.Anything, testGroupID).Return(nil).Once()

	err := f.mod.HandleMessage(ctx, joinMessage(10, testUser, testUser, models.User{ID: 43, FirstName: "Other"}))
	require.NoError(t, err)

	f.chat.AssertExpectations(t)
	f.chat.AssertNotCalled(t, "GetChatMember", mock.Anything, mock.Anything, mock.Anything)
	f.chat.AssertNotCalled(t, "BanChatMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.mod.pending.Len())
	assert.Contains(t, f.logs.String(), "Leaving Group (-2002)")
	// the second member is still looked at, without a second leave
	assert.Contains(t, f.logs.String(), "new user: Other (43)")
}

func TestModerator_KnownFrontIsNotLeft(t *testing.T) {
	f := newModeratorFixture(t)
	ctx := context.Background()

	// testGroupID is only used as the front of another group
	require.NoError(t, f.pairs.Pair(ctx, -3003, testGroupID))

	err := f.mod.HandleMessage(ctx, joinMessage(10, testUser, testUser))
	require.NoError(t, err)

	f.chat.AssertNotCalled(t, "LeaveChat", mock.Anything, mock.Anything)
	f.chat.AssertNotCalled(t, "GetChatMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestModerator_SelfJoinedMemberIsAccepted(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)

	f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).
		Return(memberWithStatus(testUserID, models.MemberStatusMember), nil).Once()

	err := f.mod.HandleMessage(context.Background(), joinMessage(10, testUser, testUser))
	require.NoError(t, err)

	f.chat.AssertExpectations(t)
	f.chat.AssertNotCalled(t, "BanChatMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, f.mod.pending.Contains(userKey(testUserID)))
	assert.False(t, f.mod.justBanned.Contains(userKey(testUserID)))
	assert.Contains(t, f.logs.String(), "Buy Followers joined")
}

func TestModerator_SelfJoinedNonMemberIsRemoved(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)

	until := f.clock.Now().Add(60 * time.Second)
	f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).
		Return(memberWithStatus(testUserID, models.MemberStatusLeft), nil).Once()
	f.chat.On("BanChatMember", mock.Anything, testGroupID, testUserID, until).Return(nil).Once()
	f.chat.On("DeleteMessage", mock.Anything, testGroupID, 10).Return(nil).Once()

	err := f.mod.HandleMessage(context.Background(), joinMessage(10, testUser, testUser))
	require.NoError(t, err)

	f.chat.AssertExpectations(t)
	assert.True(t, f.mod.justBanned.Contains(userKey(testUserID)))
	assert.False(t, f.mod.pending.Contains(userKey(testUserID)))
	assert.Contains(t, f.logs.String(), "Removed Buy Followers")
}

func TestModerator_JoinNoticeAlreadyDeleted(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)

	f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).
		Return(memberWithStatus(testUserID, models.MemberStatusKicked), nil).Once()
	f.chat.On("BanChatMember", mock.Anything, testGroupID, testUserID, mock.Anything).Return(nil).Once()
	f.chat.On("DeleteMessage", mock.Anything, testGroupID, 10).Return(notFoundErr()).Once()

	err := f.mod.HandleMessage(context.Background(), joinMessage(10, testUser, testUser))
	require.NoError(t, err)

	f.chat.AssertExpectations(t)
	f.chat.AssertNotCalled(t, "LeaveChat", mock.Anything, mock.Anything)
}

// The user posts spam while the membership query is in flight. Both the
// join notice and the spam must go, and later messages are caught by the
// just-banned registry until it expires.
func TestModerator_SpamSentDuringVerificationIsRetracted(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)
	ctx := context.Background()

	until := f.clock.Now().Add(60 * time.Second)
	f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).
		Run(func(mock.Arguments) {
			require.NoError(t, f.mod.HandleMessage(ctx, textMessage(11, testUser, "buy followers here")))
		}).
		Return(memberWithStatus(testUserID, models.MemberStatusLeft), nil).Once()
	f.chat.On("BanChatMember", mock.Anything, testGroupID, testUserID, until).Return(nil).Once()
	f.chat.On("DeleteMessage", mock.Anything, testGroupID, 10).Return(nil).Once()
	f.chat.On("DeleteMessage", mock.Anything, testGroupID, 11).Return(nil).Once()
	f.chat.On("DeleteMessage", mock.Anything, testGroupID, 12).Return(nil).Once()

	require.NoError(t, f.mod.HandleMessage(ctx, joinMessage(10, testUser, testUser)))
	assert.True(t, f.mod.justBanned.Contains(userKey(testUserID)))

	// in flight while the ban propagates
	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.mod.HandleMessage(ctx, textMessage(12, testUser, "more spam")))

	// the just-banned entry is gone after 50s
	f.clock.Advance(40 * time.Second)
	require.NoError(t, f.mod.HandleMessage(ctx, textMessage(13, testUser, "hello again")))

	f.chat.AssertExpectations(t)
	f.chat.AssertNotCalled(t, "DeleteMessage", mock.Anything, testGroupID, 13)
	assert.False(t, f.mod.justBanned.Contains(userKey(testUserID)))
}

func TestModerator_ForbiddenMembershipAbortsMessage(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)

	second := models.User{ID: 43, FirstName: "Second"}
	f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).Return(nil, forbiddenErr()).Once()

	err := f.mod.HandleMessage(context.Background(), joinMessage(10, testUser, testUser, second))
	require.NoError(t, err)

	f.chat.AssertNumberOfCalls(t, "GetChatMember", 1)
	f.chat.AssertNotCalled(t, "BanChatMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.chat.AssertNotCalled(t, "LeaveChat", mock.Anything, mock.Anything)
	assert.Contains(t, f.logs.String(), "Insufficient permissions for -1001 for group Group")
	assert.Contains(t, f.logs.String(), `"level":"warning"`)
}

func TestModerator_MembershipFailureFailsOpen(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		calls int
	}{
		{"chat not found", chatNotFoundErr(), 1},
		{"bad request", badRequestErr(), 1},
		{"network exhausted", networkErr(), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newModeratorFixture(t)
			f.pair(t)

			f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).Return(nil, tt.err)

			err := f.mod.HandleMessage(context.Background(), joinMessage(10, testUser, testUser))
			require.NoError(t, err)

			f.chat.AssertNumberOfCalls(t, "GetChatMember", tt.calls)
			f.chat.AssertNotCalled(t, "BanChatMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			assert.False(t, f.mod.pending.Contains(userKey(testUserID)))
		})
	}
}

func TestModerator_InvitedUserIsExempt(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)

	f.chat.On("GetChatMember", mock.Anything, testGroupID, testAdminID).
		Return(memberWithStatus(testAdminID, models.MemberStatusAdministrator), nil).Once()

	err := f.mod.HandleMessage(context.Background(), joinMessage(10, testAdmin, testUser))
	require.NoError(t, err)

	f.chat.AssertExpectations(t)
	f.chat.AssertNotCalled(t, "GetChatMember", mock.Anything, testFrontID, mock.Anything)
	f.chat.AssertNotCalled(t, "BanChatMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, f.mod.pending.Contains(userKey(testUserID)))
	assert.Contains(t, f.logs.String(), "Buy Followers joined by Alice")
}

func TestModerator_BotJoinersAreSkipped(t *testing.T) {
	f := newModeratorFixture(t)

	otherBot := models.User{ID: 555, IsBot: true, FirstName: "Helper"}
	err := f.mod.HandleMessage(context.Background(), joinMessage(10, testAdmin, otherBot))
	require.NoError(t, err)

	f.chat.AssertNotCalled(t, "LeaveChat", mock.Anything, mock.Anything)
}

func TestModerator_BotRemovedUnpairsChat(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)
	ctx := context.Background()

	msg := &models.Message{ID: 10, Chat: testGroup, From: &testAdmin, LeftChatMember: &testBot}
	require.NoError(t, f.mod.HandleMessage(ctx, msg))

	_, ok, err := f.pairs.Lookup(ctx, testGroupID)
	require.NoError(t, err)
	assert.False(t, ok)

	// a second removal notice for an unpaired chat is harmless
	require.NoError(t, f.mod.HandleMessage(ctx, msg))
	f.chat.AssertNotCalled(t, "LeaveChat", mock.Anything, mock.Anything)
}

func TestModerator_DeletesOwnRemovalNotice(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)

	f.chat.On("DeleteMessage", mock.Anything, testGroupID, 10).Return(nil).Once()

	msg := &models.Message{ID: 10, Chat: testGroup, From: &testBot, LeftChatMember: &testUser}
	require.NoError(t, f.mod.HandleMessage(context.Background(), msg))

	f.chat.AssertExpectations(t)
}

func TestModerator_PendingEntryExpires(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)
	ctx := context.Background()

	// a forbidden query leaves the pending entry in place
	f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).Return(nil, forbiddenErr()).Once()
	require.NoError(t, f.mod.HandleMessage(ctx, joinMessage(10, testUser, testUser)))

	require.NoError(t, f.mod.HandleMessage(ctx, textMessage(11, testUser, "first")))
	ids, ok := f.mod.pending.Get(userKey(testUserID))
	require.True(t, ok)
	assert.Equal(t, []int{11}, ids)

	f.clock.Advance(300 * time.Second)
	require.NoError(t, f.mod.HandleMessage(ctx, textMessage(12, testUser, "second")))
	assert.False(t, f.mod.pending.Contains(userKey(testUserID)))
}

func TestModerator_ChatAPIFailureLeavesAndUnpairs(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)
	ctx := context.Background()

	f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).
		Return(memberWithStatus(testUserID, models.MemberStatusLeft), nil).Once()
	f.chat.On("BanChatMember", mock.Anything, testGroupID, testUserID, mock.Anything).
		Return(errors.NewChatAPIError("banChatMember", 400, "Bad Request: not enough rights to restrict/unrestrict chat member", nil)).Once()
	f.chat.On("LeaveChat", mock.Anything, testGroupID).Return(nil).Once()

	require.NoError(t, f.mod.HandleMessage(ctx, joinMessage(10, testUser, testUser)))

	f.chat.AssertExpectations(t)
	_, ok, err := f.pairs.Lookup(ctx, testGroupID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, f.logs.String(), "Chat API failure, leaving chat")
}

func TestModerator_LeaveFailureIsOnlyLogged(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)
	ctx := context.Background()

	f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).
		Return(memberWithStatus(testUserID, models.MemberStatusLeft), nil).Once()
	f.chat.On("BanChatMember", mock.Anything, testGroupID, testUserID, mock.Anything).Return(forbiddenErr()).Once()
	f.chat.On("LeaveChat", mock.Anything, testGroupID).Return(forbiddenErr()).Once()

	require.NoError(t, f.mod.HandleMessage(ctx, joinMessage(10, testUser, testUser)))

	_, ok, err := f.pairs.Lookup(ctx, testGroupID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, f.logs.String(), "Failed to leave chat")
}

func TestModerator_NotFoundIsSwallowed(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)

	f.mod.justBanned.Set(userKey(testUserID), true)
	f.chat.On("DeleteMessage", mock.Anything, testGroupID, 20).Return(notFoundErr()).Once()

	require.NoError(t, f.mod.HandleMessage(context.Background(), textMessage(20, testUser, "spam")))

	f.chat.AssertExpectations(t)
	f.chat.AssertNotCalled(t, "LeaveChat", mock.Anything, mock.Anything)
}

func TestModerator_NetworkFailureDoesNotSelfHeal(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)
	ctx := context.Background()

	f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).
		Return(memberWithStatus(testUserID, models.MemberStatusLeft), nil).Once()
	f.chat.On("BanChatMember", mock.Anything, testGroupID, testUserID, mock.Anything).
		Return(errors.NewNetworkError("banChatMember", context.DeadlineExceeded)).Once()

	require.NoError(t, f.mod.HandleMessage(ctx, joinMessage(10, testUser, testUser)))

	f.chat.AssertNotCalled(t, "LeaveChat", mock.Anything, mock.Anything)
	_, ok, err := f.pairs.Lookup(ctx, testGroupID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, f.logs.String(), "Aborted moderation after a network failure")
}

func TestModerator_FloodControlDoesNotSelfHeal(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)
	ctx := context.Background()

	f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).
		Return(memberWithStatus(testUserID, models.MemberStatusLeft), nil).Once()
	f.chat.On("BanChatMember", mock.Anything, testGroupID, testUserID, mock.Anything).Return(nil).Once()
	f.chat.On("DeleteMessage", mock.Anything, testGroupID, 10).
		Return(errors.NewChatAPIError("deleteMessage", 429, "Too Many Requests: retry after 7", nil)).Once()

	require.NoError(t, f.mod.HandleMessage(ctx, joinMessage(10, testUser, testUser)))

	f.chat.AssertNotCalled(t, "LeaveChat", mock.Anything, mock.Anything)
	_, ok, err := f.pairs.Lookup(ctx, testGroupID)
	require.NoError(t, err)
	assert.True(t, ok, "a rate limited group must stay paired")
	assert.Contains(t, f.logs.String(), "Aborted moderation after a network failure")
}

func TestModerator_StorageFailureDoesNotSelfHeal(t *testing.T) {
	chat := new(mockChatActions)
	pairs := new(mockPairingRegistry)
	logger, logs := newTestLogger()

	pairs.On("Lookup", mock.Anything, testGroupID).
		Return(int64(0), false, errors.NewDatabaseError("get", context.DeadlineExceeded)).Once()

	mod, err := NewModerator(testBot, chat, pairs, NewMembershipChecker(chat, 3, WithLogger(logger)),
		testModeratorConfig(), WithLogger(logger))
	require.NoError(t, err)

	require.NoError(t, mod.HandleMessage(context.Background(), joinMessage(10, testUser, testUser)))

	pairs.AssertExpectations(t)
	pairs.AssertNotCalled(t, "Unpair", mock.Anything, mock.Anything)
	chat.AssertNotCalled(t, "LeaveChat", mock.Anything, mock.Anything)
	assert.Contains(t, logs.String(), "Aborted moderation after a store failure")
}

func TestModerator_ContextCanceledIsReturned(t *testing.T) {
	f := newModeratorFixture(t)
	f.pair(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.chat.On("GetChatMember", mock.Anything, testFrontID, testUserID).
		Return(memberWithStatus(testUserID, models.MemberStatusLeft), nil).Once()
	f.chat.On("BanChatMember", mock.Anything, testGroupID, testUserID, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(context.Canceled).Once()

	err := f.mod.HandleMessage(ctx, joinMessage(10, testUser, testUser))
	assert.ErrorIs(t, err, context.Canceled)
	f.chat.AssertNotCalled(t, "LeaveChat", mock.Anything, mock.Anything)
}
