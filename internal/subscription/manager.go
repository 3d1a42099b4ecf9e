package subscription

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"studyhall/internal/metrics"
	"studyhall/internal/models"
	"studyhall/internal/store"
)

// SnapshotFunc receives the full session document on every change. A nil
// document means the session was deleted.
type SnapshotFunc func(doc *models.Session)

// DetachFunc removes exactly the feed the Attach call that returned it
// installed. Once that feed has been replaced or torn down it is a no-op, so
// a stale handle can never kill a successor feed.
type DetachFunc func()

type feed struct {
	code  string
	unsub store.UnsubscribeFunc
}

// Manager maintains at most one live change feed per client. Every snapshot
// replaces the client's whole view of the session; there is no diffing and no
// optimistic local prediction, so clients always converge on some valid
// document even when a racing write was lost.
type Manager struct {
	store  store.SessionStore
	logger *zap.Logger

	mu    sync.Mutex
	feeds map[string]*feed // clientID -> live feed
}

func NewManager(st store.SessionStore, logger *zap.Logger) *Manager {
	return &Manager{
		store:  st,
		logger: logger,
		feeds:  make(map[string]*feed),
	}
}

// Attach installs a change feed for clientID on the given room, replacing any
// prior feed the client held. The current document is delivered before Attach
// returns.
func (m *Manager) Attach(ctx context.Context, clientID, code string, onSnapshot SnapshotFunc) (DetachFunc, error) {
	m.Detach(clientID)

	f := &feed{code: code}
	unsub, err := m.store.Subscribe(ctx, code, func(doc *models.Session) {
		onSnapshot(doc)
		if doc == nil {
			// Session deleted; the feed is already terminated upstream.
			go m.detachFeed(clientID, f)
		}
	})
	if err != nil {
		return nil, err
	}
	f.unsub = unsub

	m.mu.Lock()
	if prior, ok := m.feeds[clientID]; ok {
		// A competing Attach for the same client won while we subscribed.
		prior.unsub()
		metrics.SubscriptionClosed()
	}
	m.feeds[clientID] = f
	m.mu.Unlock()

	metrics.SubscriptionOpened()
	m.logger.Debug("subscription attached",
		zap.String("clientId", clientID), zap.String("code", code))
	return func() { m.detachFeed(clientID, f) }, nil
}

// detachFeed removes f only while it is still the client's current feed.
func (m *Manager) detachFeed(clientID string, f *feed) {
	m.mu.Lock()
	cur, ok := m.feeds[clientID]
	if !ok || cur != f {
		m.mu.Unlock()
		return
	}
	delete(m.feeds, clientID)
	m.mu.Unlock()

	f.unsub()
	metrics.SubscriptionClosed()
	m.logger.Debug("subscription detached", zap.String("clientId", clientID))
}

// Detach tears down the client's feed if one exists.
func (m *Manager) Detach(clientID string) {
	m.mu.Lock()
	f, ok := m.feeds[clientID]
	if ok {
		delete(m.feeds, clientID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	f.unsub()
	metrics.SubscriptionClosed()
	m.logger.Debug("subscription detached", zap.String("clientId", clientID))
}

// Code returns the room the client is currently subscribed to, if any.
func (m *Manager) Code(clientID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feeds[clientID]
	if !ok {
		return "", false
	}
	return f.code, true
}
