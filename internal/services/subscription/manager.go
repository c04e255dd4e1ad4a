package subscription

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/transport"
)

// subscribeParams is the body of a peer/subscribeUpdates call
type subscribeParams struct {
	UserIDs []string `json:"userIds"`
}

// Manager tracks which peers have a push-update subscription and issues
// batched subscribe calls for peers that do not have one yet
type Manager struct {
	requester transport.Requester
	logger    *slog.Logger

	mu         sync.Mutex
	registered model.PeerSet
	inFlight   model.PeerSet
}

// NewManager creates a new subscription Manager
func NewManager(requester transport.Requester, logger *slog.Logger) *Manager {
	return &Manager{
		requester:  requester,
		logger:     logger.With(slog.String("component", "subscriptions")),
		registered: model.NewPeerSet(),
		inFlight:   model.NewPeerSet(),
	}
}

// EnsureSubscribed subscribes to every peer in peers that is neither
// registered nor already being subscribed by a concurrent call. Failures
// are logged and leave the peers as candidates for a later attempt.
func (m *Manager) EnsureSubscribed(ctx context.Context, peers model.PeerSet) {
	m.mu.Lock()
	pending := make([]model.PeerID, 0, len(peers))
	for _, id := range peers.Slice() {
		if m.registered.Has(id) || m.inFlight.Has(id) {
			continue
		}
		m.inFlight.Add(id)
		pending = append(pending, id)
	}
	m.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	params := subscribeParams{UserIDs: make([]string, len(pending))}
	for i, id := range pending {
		params.UserIDs[i] = id.String()
	}

	err := m.requester.Request(ctx, transport.MethodSubscribeUpdates, params, nil)

	m.mu.Lock()
	for _, id := range pending {
		m.inFlight.Remove(id)
		if err == nil {
			m.registered.Add(id)
		}
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("failed to subscribe to peer updates",
			slog.Int("peers", len(pending)),
			slog.String("error", err.Error()))
		return
	}

	m.logger.Debug("subscribed to peer updates", slog.Int("peers", len(pending)))
}

// Registered reports whether id has an active subscription
func (m *Manager) Registered(id model.PeerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered.Has(id)
}

// Len returns the number of registered peers
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registered)
}
