package coordinator

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"studyhall/internal/models"
	"studyhall/internal/roomcode"
	"studyhall/internal/store"
	"studyhall/internal/subscription"
)

func setupCoordinator(t *testing.T) (*Coordinator, store.SessionStore) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewRedisSessionStore(client)
	logger := zap.NewNop()
	subs := subscription.NewManager(st, logger)
	c := New(st, subs, roomcode.NewGenerator(1), logger)
	return c, st
}

var (
	alice = models.Identity{ID: "u-alice", DisplayName: "Alice"}
	bob   = models.Identity{ID: "u-bob", DisplayName: "Bob"}
	carol = models.Identity{ID: "u-carol", DisplayName: "Carol"}
)

// assertJoin joins identity to the room without a snapshot sink.
func assertJoin(t *testing.T, c *Coordinator, ctx context.Context, code string, identity models.Identity) {
	t.Helper()
	_, err := c.JoinRoom(ctx, code, identity, nil)
	assert.NoError(t, err)
}

// assertInvariants checks hostId membership and permission key alignment,
// which must hold after any sequence of create/join/leave.
func assertInvariants(t *testing.T, doc *models.Session) {
	t.Helper()
	if len(doc.Participants) > 0 {
		assert.True(t, doc.HasParticipant(doc.HostID), "hostId must be a participant")
	}
	assert.Len(t, doc.Permissions, len(doc.Participants))
	for _, p := range doc.Participants {
		_, ok := doc.Permissions[p.ID]
		assert.True(t, ok, "participant %s must have a permission entry", p.ID)
	}
}

func TestCreateRoom(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)
	assert.Regexp(t, `^[A-Z]+-[A-Z]+-\d{2}$`, code)

	doc, err := c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assert.Equal(t, alice.ID, doc.HostID)
	assert.Len(t, doc.Participants, 1)
	assert.True(t, doc.Permissions[alice.ID].CanShare)
	assert.Empty(t, doc.ChatMessages)
	assert.Empty(t, doc.SharedNotes)
	assert.Nil(t, doc.QuizState)
	assert.Greater(t, doc.CreatedAtMs, int64(0))
	assertInvariants(t, doc)
}

func TestCreateRoomManyNoDuplicates(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		code, _, err := c.CreateRoom(ctx, alice, nil)
		assert.NoError(t, err)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestJoinRoom(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)

	assertJoin(t, c, ctx, code, bob)

	doc, err := c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assert.Len(t, doc.Participants, 2)
	assert.Equal(t, bob.ID, doc.Participants[1].ID)
	assert.False(t, doc.Permissions[bob.ID].CanShare)
	assertInvariants(t, doc)
}

func TestJoinRoomIdempotent(t *testing.T) {
	c, st := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)
	assertJoin(t, c, ctx, code, bob)

	// Grant bob sharing rights, then rejoin; the flag must survive.
	assert.NoError(t, c.SetSharePermission(ctx, code, alice, bob.ID, true))
	assertJoin(t, c, ctx, code, bob)

	doc, err := st.ReadOnce(ctx, code)
	assert.NoError(t, err)
	assert.Len(t, doc.Participants, 2)
	assert.True(t, doc.Permissions[bob.ID].CanShare)
	assertInvariants(t, doc)
}

func TestJoinRoomNotFound(t *testing.T) {
	c, _ := setupCoordinator(t)
	_, err := c.JoinRoom(context.Background(), "NO-SUCH-00", bob, nil)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinRoomNormalizesCode(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)

	assertJoin(t, c, ctx, "  "+lower(code)+" ", bob)

	doc, err := c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assert.Len(t, doc.Participants, 2)
}

func lower(s string) string {
	out := []byte(s)
	for i, b := range out {
		if b >= 'A' && b <= 'Z' {
			out[i] = b + 32
		}
	}
	return string(out)
}

func TestLeaveRoomLastParticipantDeletesSession(t *testing.T) {
	c, st := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)

	assert.NoError(t, c.LeaveRoom(ctx, code, alice))

	_, err = st.ReadOnce(ctx, code)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLeaveRoomHostFailover(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)
	assertJoin(t, c, ctx, code, bob)
	assertJoin(t, c, ctx, code, carol)

	// Host leaves: earliest remaining joiner inherits host and canShare.
	assert.NoError(t, c.LeaveRoom(ctx, code, alice))

	doc, err := c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assert.Equal(t, bob.ID, doc.HostID)
	assert.True(t, doc.Permissions[bob.ID].CanShare)
	assert.Equal(t, []string{bob.ID, carol.ID}, participantIDs(doc))
	_, hasAlice := doc.Permissions[alice.ID]
	assert.False(t, hasAlice)
	assertInvariants(t, doc)
}

func TestLeaveRoomNonHost(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)
	assertJoin(t, c, ctx, code, bob)

	assert.NoError(t, c.LeaveRoom(ctx, code, bob))

	doc, err := c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assert.Equal(t, alice.ID, doc.HostID)
	assert.Equal(t, []string{alice.ID}, participantIDs(doc))
	assertInvariants(t, doc)
}

func TestLeaveRoomNonMemberIsNoop(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)

	assert.NoError(t, c.LeaveRoom(ctx, code, bob))

	doc, err := c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assert.Len(t, doc.Participants, 1)
}

func TestInvariantsAcrossChurn(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)

	ids := []models.Identity{bob, carol,
		{ID: "u-dan", DisplayName: "Dan"},
		{ID: "u-eve", DisplayName: "Eve"},
	}
	for _, id := range ids {
		assertJoin(t, c, ctx, code, id)
		doc, err := c.Snapshot(ctx, code)
		assert.NoError(t, err)
		assertInvariants(t, doc)
	}

	// Host leaves twice in a row, then a mid-list member.
	assert.NoError(t, c.LeaveRoom(ctx, code, alice))
	doc, err := c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assertInvariants(t, doc)

	assert.NoError(t, c.LeaveRoom(ctx, code, bob))
	doc, err = c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assertInvariants(t, doc)

	assert.NoError(t, c.LeaveRoom(ctx, code, models.Identity{ID: "u-eve"}))
	doc, err = c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assertInvariants(t, doc)
	assert.Equal(t, carol.ID, doc.HostID)
}

func TestSendChatMessage(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)
	assertJoin(t, c, ctx, code, bob)

	// Chat has no permission gate: bob has canShare=false but may chat.
	assert.NoError(t, c.SendChatMessage(ctx, code, bob, "hello"))
	assert.NoError(t, c.SendChatMessage(ctx, code, alice, "hi bob"))

	doc, err := c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assert.Len(t, doc.ChatMessages, 2)
	assert.Equal(t, "hello", doc.ChatMessages[0].Text)
	assert.Equal(t, bob.ID, doc.ChatMessages[0].SenderID)
	assert.Equal(t, "Bob", doc.ChatMessages[0].SenderName)
	assert.NotEmpty(t, doc.ChatMessages[0].ID)
	assert.Greater(t, doc.ChatMessages[0].TimestampMs, int64(0))
}

func TestSendChatMessageRoomNotFound(t *testing.T) {
	c, _ := setupCoordinator(t)
	err := c.SendChatMessage(context.Background(), "NO-SUCH-00", alice, "hello")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestShareNotesPermissionGate(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)
	assertJoin(t, c, ctx, code, bob)

	err = c.ShareNotes(ctx, code, bob, []string{"stolen notes"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	doc, err := c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assert.Empty(t, doc.SharedNotes)

	// Host can share, and a granted participant can too.
	assert.NoError(t, c.ShareNotes(ctx, code, alice, []string{"photosynthesis", "chlorophyll"}))
	assert.NoError(t, c.SetSharePermission(ctx, code, alice, bob.ID, true))
	assert.NoError(t, c.ShareNotes(ctx, code, bob, []string{"mitochondria"}))

	doc, err = c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assert.Len(t, doc.SharedNotes, 2)
	assert.Equal(t, alice.ID, doc.SharedNotes[0].AuthorID)
	assert.Equal(t, []string{"mitochondria"}, doc.SharedNotes[1].Lines)
}

func TestSetSharePermission(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)
	assertJoin(t, c, ctx, code, bob)

	// Only the host may change permissions.
	err = c.SetSharePermission(ctx, code, bob, bob.ID, true)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = c.SetSharePermission(ctx, code, alice, "u-ghost", true)
	assert.ErrorIs(t, err, ErrNotParticipant)

	assert.NoError(t, c.SetSharePermission(ctx, code, alice, bob.ID, true))
	doc, err := c.Snapshot(ctx, code)
	assert.NoError(t, err)
	assert.True(t, doc.Permissions[bob.ID].CanShare)
}

func TestCreateThenLeaveRoundTrip(t *testing.T) {
	c, st := setupCoordinator(t)
	ctx := context.Background()

	code, _, err := c.CreateRoom(ctx, alice, nil)
	assert.NoError(t, err)
	assert.NoError(t, c.LeaveRoom(ctx, code, alice))

	_, err = st.ReadOnce(ctx, code)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The code is free for reuse afterwards.
	created, err := st.CreateIfAbsent(ctx, code, &models.Session{Code: code, HostID: "x"})
	assert.NoError(t, err)
	assert.True(t, created)
}

func participantIDs(doc *models.Session) []string {
	ids := make([]string, 0, len(doc.Participants))
	for _, p := range doc.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}
