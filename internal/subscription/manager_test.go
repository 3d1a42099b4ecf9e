package subscription

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"studyhall/internal/models"
	"studyhall/internal/store"
)

func setupTestStore(t *testing.T) store.SessionStore {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return store.NewRedisSessionStore(client)
}

func seedSession(t *testing.T, st store.SessionStore, code string) {
	t.Helper()
	created, err := st.CreateIfAbsent(context.Background(), code, &models.Session{
		Code:         code,
		HostID:       "h",
		Participants: []models.Participant{{ID: "h"}},
		Permissions:  map[string]models.SharePermission{"h": {CanShare: true}},
		CreatedAtMs:  time.Now().UnixMilli(),
	})
	assert.NoError(t, err)
	assert.True(t, created)
}

func TestAttachDeliversInitialSnapshot(t *testing.T) {
	st := setupTestStore(t)
	seedSession(t, st, "AMBER-RAVEN-01")
	m := NewManager(st, zap.NewNop())

	var got atomic.Value
	_, err := m.Attach(context.Background(), "client1", "AMBER-RAVEN-01", func(doc *models.Session) {
		got.Store(doc)
	})
	assert.NoError(t, err)
	t.Cleanup(func() { m.Detach("client1") })

	doc, _ := got.Load().(*models.Session)
	assert.NotNil(t, doc)
	assert.Equal(t, "AMBER-RAVEN-01", doc.Code)

	code, ok := m.Code("client1")
	assert.True(t, ok)
	assert.Equal(t, "AMBER-RAVEN-01", code)
}

func TestAttachReplacesPriorFeed(t *testing.T) {
	st := setupTestStore(t)
	seedSession(t, st, "AMBER-RAVEN-01")
	seedSession(t, st, "CEDAR-WOMBAT-02")
	m := NewManager(st, zap.NewNop())

	var firstRoomSnapshots int32
	_, err := m.Attach(context.Background(), "client1", "AMBER-RAVEN-01", func(doc *models.Session) {
		atomic.AddInt32(&firstRoomSnapshots, 1)
	})
	assert.NoError(t, err)

	_, err = m.Attach(context.Background(), "client1", "CEDAR-WOMBAT-02", func(doc *models.Session) {})
	assert.NoError(t, err)
	t.Cleanup(func() { m.Detach("client1") })

	code, ok := m.Code("client1")
	assert.True(t, ok)
	assert.Equal(t, "CEDAR-WOMBAT-02", code)

	// A write to the first room must no longer reach the replaced feed.
	before := atomic.LoadInt32(&firstRoomSnapshots)
	err = st.UpdateFields(context.Background(), "AMBER-RAVEN-01",
		store.Append(store.FieldChatMessages, models.ChatMessage{ID: "m1", Text: "hi"}))
	assert.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, atomic.LoadInt32(&firstRoomSnapshots))
}

func TestDetachStopsSnapshots(t *testing.T) {
	st := setupTestStore(t)
	seedSession(t, st, "AMBER-RAVEN-01")
	m := NewManager(st, zap.NewNop())

	var snapshots int32
	_, err := m.Attach(context.Background(), "client1", "AMBER-RAVEN-01", func(doc *models.Session) {
		atomic.AddInt32(&snapshots, 1)
	})
	assert.NoError(t, err)

	m.Detach("client1")
	_, ok := m.Code("client1")
	assert.False(t, ok)

	before := atomic.LoadInt32(&snapshots)
	err = st.UpdateFields(context.Background(), "AMBER-RAVEN-01",
		store.Append(store.FieldChatMessages, models.ChatMessage{ID: "m1", Text: "hi"}))
	assert.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, atomic.LoadInt32(&snapshots))
}

func TestDetachUnknownClientIsSafe(t *testing.T) {
	st := setupTestStore(t)
	m := NewManager(st, zap.NewNop())
	m.Detach("never-attached")
}

func TestAttachUnknownRoom(t *testing.T) {
	st := setupTestStore(t)
	m := NewManager(st, zap.NewNop())

	_, err := m.Attach(context.Background(), "client1", "NO-SUCH-00", func(*models.Session) {})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, ok := m.Code("client1")
	assert.False(t, ok)
}

func TestSessionDeletionTerminatesFeed(t *testing.T) {
	st := setupTestStore(t)
	seedSession(t, st, "AMBER-RAVEN-01")
	m := NewManager(st, zap.NewNop())

	gotNil := make(chan struct{}, 1)
	_, err := m.Attach(context.Background(), "client1", "AMBER-RAVEN-01", func(doc *models.Session) {
		if doc == nil {
			gotNil <- struct{}{}
		}
	})
	assert.NoError(t, err)

	assert.NoError(t, st.Delete(context.Background(), "AMBER-RAVEN-01"))

	select {
	case <-gotNil:
	case <-time.After(2 * time.Second):
		t.Fatal("deletion snapshot never delivered")
	}

	assert.Eventually(t, func() bool {
		_, ok := m.Code("client1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStaleDetachHandleKeepsReplacementFeed(t *testing.T) {
	st := setupTestStore(t)
	seedSession(t, st, "AMBER-RAVEN-01")
	m := NewManager(st, zap.NewNop())

	detachFirst, err := m.Attach(context.Background(), "client1", "AMBER-RAVEN-01", func(*models.Session) {})
	assert.NoError(t, err)

	var snapshots int32
	_, err = m.Attach(context.Background(), "client1", "AMBER-RAVEN-01", func(doc *models.Session) {
		atomic.AddInt32(&snapshots, 1)
	})
	assert.NoError(t, err)
	t.Cleanup(func() { m.Detach("client1") })

	// The replaced feed's handle firing late must not touch the new feed.
	detachFirst()

	code, ok := m.Code("client1")
	assert.True(t, ok)
	assert.Equal(t, "AMBER-RAVEN-01", code)

	before := atomic.LoadInt32(&snapshots)
	err = st.UpdateFields(context.Background(), "AMBER-RAVEN-01",
		store.Append(store.FieldChatMessages, models.ChatMessage{ID: "m1", Text: "hi"}))
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&snapshots) > before
	}, 2*time.Second, 10*time.Millisecond)
}
