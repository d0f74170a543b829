package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	s := New("node-1")

	_, err := s.CreateUser("alice", []byte("hash"))
	require.NoError(t, err)

	_, err = s.CreateUser("alice", []byte("hash2"))
	assert.ErrorIs(t, err, ErrUserNameExists)
}

func TestSessionLifecycle(t *testing.T) {
	s := New("node-1")
	u, err := s.CreateUser("bob", []byte("hash"))
	require.NoError(t, err)

	got, err := s.SetSession(u.ID, "session-abc")
	require.NoError(t, err)
	assert.True(t, got.LoggedIn)
	assert.Equal(t, "session-abc", got.SessionID)

	found, ok := s.FindUserBySession("session-abc")
	require.True(t, ok)
	assert.Equal(t, u.ID, found.ID)

	require.NoError(t, s.ClearSession(u.ID))
	_, ok = s.FindUserBySession("session-abc")
	assert.False(t, ok)
}

func TestSendAndFetchUnread(t *testing.T) {
	s := New("node-1")
	sender, _ := s.CreateUser("alice", []byte("h"))
	receiver, _ := s.CreateUser("bob", []byte("h"))

	_, err := s.InsertMessage(sender.ID, receiver.ID, "hi bob")
	require.NoError(t, err)

	unread := s.FetchUnreadFor(receiver.ID)
	require.Len(t, unread, 1)
	assert.Equal(t, "hi bob", unread[0].Content)
	assert.True(t, unread[0].IsReceived)

	// A second fetch sees nothing new: already flipped to received.
	assert.Empty(t, s.FetchUnreadFor(receiver.ID))
}

func TestInsertMessageUnknownReceiver(t *testing.T) {
	s := New("node-1")
	sender, _ := s.CreateUser("alice", []byte("h"))

	_, err := s.InsertMessage(sender.ID, 999, "hi")
	assert.ErrorIs(t, err, ErrReceiverNotFound)
}

func TestDeleteMessagesOnlyBySenderOrReceiver(t *testing.T) {
	s := New("node-1")
	alice, _ := s.CreateUser("alice", []byte("h"))
	bob, _ := s.CreateUser("bob", []byte("h"))
	carol, _ := s.CreateUser("carol", []byte("h"))

	msg, _ := s.InsertMessage(alice.ID, bob.ID, "secret")

	// carol is neither sender nor receiver: her delete request is ignored.
	tombstones := s.DeleteMessages([]int64{msg.ID}, carol.ID)
	assert.Empty(t, tombstones)

	tombstones = s.DeleteMessages([]int64{msg.ID}, alice.ID)
	require.Len(t, tombstones, 1)
	assert.Equal(t, msg.ID, tombstones[0].OriginalMessageID)

	chat := s.FetchChat(alice.ID, bob.ID)
	assert.Empty(t, chat)
}

func TestDeleteUserCascadeTombstonesIncomingMessages(t *testing.T) {
	s := New("node-1")
	alice, _ := s.CreateUser("alice", []byte("h"))
	bob, _ := s.CreateUser("bob", []byte("h"))

	_, err := s.InsertMessage(alice.ID, bob.ID, "hi")
	require.NoError(t, err)

	_, tombstones, err := s.DeleteUserCascade(bob.ID)
	require.NoError(t, err)
	require.Len(t, tombstones, 1)

	_, ok := s.FindUserByID(bob.ID)
	assert.False(t, ok)
}

func TestListUsersWildcard(t *testing.T) {
	s := New("node-1")
	_, _ = s.CreateUser("alice", []byte("h"))
	_, _ = s.CreateUser("alicia", []byte("h"))
	bob, _ := s.CreateUser("bob", []byte("h"))
	_, _ = s.SetSession(bob.ID, "tok")

	results := s.ListUsers("alic*")
	assert.Len(t, results, 2)

	all := s.ListUsers("")
	assert.Len(t, all, 3)
	for _, u := range all {
		if u.Username == "bob" {
			assert.Equal(t, "online", u.Status)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New("node-1")
	alice, _ := s.CreateUser("alice", []byte("h"))
	bob, _ := s.CreateUser("bob", []byte("h"))
	_, _ = s.InsertMessage(alice.ID, bob.ID, "hi")

	snap := s.SnapshotAll()

	follower := New("node-2")
	follower.LoadSnapshot(snap)

	got, ok := follower.FindUserByName("alice")
	require.True(t, ok)
	assert.Equal(t, alice.ID, got.ID)

	chat := follower.FetchChat(alice.ID, bob.ID)
	require.Len(t, chat, 1)
}

func TestApplyEventIsIdempotent(t *testing.T) {
	s := New("follower-1")
	user := &model.User{ID: 1, Username: "alice", Version: 1}

	ev := model.MutationEvent{Table: model.TableUsers, Op: model.OpAdd, Row: user}
	require.NoError(t, s.ApplyEvent(ev))
	require.NoError(t, s.ApplyEvent(ev)) // replay, at-most-once — must not error or duplicate

	got, ok := s.FindUserByID(1)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)

	// An update that is not newer (same version) must be a no-op against the stored row.
	stale := &model.User{ID: 1, Username: "EVIL", Version: 1}
	require.NoError(t, s.ApplyEvent(model.MutationEvent{Table: model.TableUsers, Op: model.OpUpdate, Row: stale}))
	got, _ = s.FindUserByID(1)
	assert.Equal(t, "alice", got.Username)
}

func TestApplyEventUnknownTable(t *testing.T) {
	s := New("follower-1")
	err := s.ApplyEvent(model.MutationEvent{Table: "bogus", Op: model.OpAdd, Row: &model.User{}})
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestWipeAndRecreate(t *testing.T) {
	s := New("node-1")
	_, _ = s.CreateUser("alice", []byte("h"))
	s.WipeAndRecreate()

	_, ok := s.FindUserByName("alice")
	assert.False(t, ok)
}
