// Package engine owns the local identity's state and serializes every
// write to it, whether it comes from a push event or a reconciliation.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/relsync/internal/dependencies/clock"
	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/services/auth"
	"github.com/mcoot/relsync/internal/services/reconcile"
	"github.com/mcoot/relsync/internal/services/relationship"
	"github.com/mcoot/relsync/internal/services/subscription"
	"github.com/mcoot/relsync/internal/storage"
	"github.com/mcoot/relsync/internal/transport"
)

// Authenticator establishes the remote session
type Authenticator interface {
	HasCredentials(ctx context.Context) (bool, error)
	Login(ctx context.Context) (*auth.Session, error)
	Logout(ctx context.Context) error
}

// Config holds configuration for the engine
type Config struct {
	Reconcile reconcile.Config
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{Reconcile: reconcile.DefaultConfig()}
}

// Engine is the synchronization core. State is mutated only while mu is
// held and never across a network or cache call.
type Engine struct {
	cache         storage.ProfileCache
	auth          Authenticator
	machine       *relationship.Machine
	subscriptions *subscription.Manager
	reconciler    *reconcile.Engine
	clock         clock.Clock
	logger        *slog.Logger

	// initMu serializes Init; persistMu serializes self record writes
	initMu    sync.Mutex
	persistMu sync.Mutex

	mu             sync.RWMutex
	self           *model.SelfProfile
	hydrated       bool
	initialized    bool
	authenticated  bool
	lastReconciled *time.Time
	version        uint64
	observers      map[uint64]chan model.StateSnapshot
	nextObserver   uint64

	// kick carries reconcile requests from connect hooks to Run
	kick chan struct{}
}

// New creates a new Engine
func New(
	requester transport.Requester,
	cache storage.ProfileCache,
	authenticator Authenticator,
	clock clock.Clock,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	e := &Engine{
		cache:     cache,
		auth:      authenticator,
		machine:   relationship.New(logger),
		clock:     clock,
		logger:    logger.With(slog.String("component", "engine")),
		self:      model.NewSelfProfile(),
		observers: make(map[uint64]chan model.StateSnapshot),
		kick:      make(chan struct{}, 1),
	}
	e.subscriptions = subscription.NewManager(requester, logger)
	e.reconciler = reconcile.New(requester, e, e.subscriptions, cache, cfg.Reconcile, logger)
	return e
}

// Init hydrates the self profile from the cache and logs in when
// credentials are stored. It completes at most once; a failed login leaves
// the engine uninitialized so a later call retries.
func (e *Engine) Init(ctx context.Context) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	e.mu.RLock()
	done, hydrated := e.initialized, e.hydrated
	e.mu.RUnlock()
	if done {
		return nil
	}

	if !hydrated {
		e.hydrate(ctx)
	}

	if e.auth != nil {
		has, err := e.auth.HasCredentials(ctx)
		if err != nil {
			e.logger.Warn("failed to read stored credentials", slog.String("error", err.Error()))
		}
		if has {
			if err := e.Login(ctx); err != nil {
				return err
			}
		}
	}

	e.mu.Lock()
	e.initialized = true
	e.commitLocked()
	e.mu.Unlock()

	e.logger.Info("engine initialized", slog.Bool("authenticated", e.Authenticated()))
	return nil
}

func (e *Engine) hydrate(ctx context.Context) {
	rec, err := e.cache.GetSelf(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.hydrated = true

	switch {
	case err == nil:
		e.self.Hydrate(rec)
		e.commitLocked()
		e.logger.Info("self profile restored from cache", slog.Int64("user_id", int64(rec.ID)))
	case errors.Is(err, model.ErrSelfNotFound):
		e.logger.Debug("no cached self profile")
	default:
		e.logger.Warn("failed to read cached self profile", slog.String("error", err.Error()))
	}
}

// Login authenticates with stored credentials. Failure is returned and
// leaves the engine unauthenticated.
func (e *Engine) Login(ctx context.Context) error {
	if e.auth == nil {
		return model.ErrNoCredentials
	}

	session, err := e.auth.Login(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.setAuthenticatedLocked(false)
		return err
	}
	if e.self.ID == 0 {
		e.self.ID = session.UserID
	}
	e.setAuthenticatedLocked(true)
	return nil
}

// Logout marks the engine unauthenticated. Stored credentials are kept.
func (e *Engine) Logout(ctx context.Context) {
	e.mu.Lock()
	e.setAuthenticatedLocked(false)
	e.mu.Unlock()
}

// PlayOffline continues without a remote session
func (e *Engine) PlayOffline(ctx context.Context) {
	e.Logout(ctx)
}

// ChangeAccount ends the remote session and forgets the stored credentials
func (e *Engine) ChangeAccount(ctx context.Context) error {
	var err error
	if e.auth != nil {
		err = e.auth.Logout(ctx)
	}
	e.Logout(ctx)
	return err
}

func (e *Engine) setAuthenticatedLocked(v bool) {
	if e.authenticated == v {
		return
	}
	e.authenticated = v
	e.commitLocked()
}

// Apply applies one validated push event. Subscription and cache failures
// are logged and never undo the state change.
func (e *Engine) Apply(ctx context.Context, ev model.Event) {
	if ev.Type == model.EventSelfUpdated {
		e.applySelf(ctx, ev.Self)
		return
	}

	e.mu.Lock()
	res := e.machine.Apply(e.self.Relationships, ev)
	if res.Changed {
		e.commitLocked()
	}
	e.mu.Unlock()

	if len(res.Relevant) > 0 {
		e.subscriptions.EnsureSubscribed(ctx, res.Relevant)
	}
}

func (e *Engine) applySelf(ctx context.Context, update *model.SelfUpdate) {
	if update == nil {
		return
	}

	e.mu.Lock()
	res := e.machine.MergeSelf(e.self, update)
	if res.Changed {
		e.commitLocked()
	}
	e.mu.Unlock()

	if len(res.Relevant) > 0 {
		e.subscriptions.EnsureSubscribed(ctx, res.Relevant)
	}
	e.persistSelf(ctx)
}

// persistSelf writes the current self profile as the marked record, after
// clearing the marker from whichever record held it
func (e *Engine) persistSelf(ctx context.Context) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.RLock()
	rec := e.self.Record()
	e.mu.RUnlock()

	prev, err := e.cache.GetSelf(ctx)
	switch {
	case err == nil:
		if err := e.cache.ClearSelfMarker(ctx, prev.ID); err != nil {
			e.logger.Warn("failed to clear self marker",
				slog.Int64("user_id", int64(prev.ID)),
				slog.String("error", err.Error()),
			)
		}
	case !errors.Is(err, model.ErrSelfNotFound):
		e.logger.Warn("failed to read cached self profile", slog.String("error", err.Error()))
	}

	if err := e.cache.PutSelf(ctx, rec); err != nil {
		e.logger.Warn("failed to persist self profile",
			slog.Int64("user_id", int64(rec.ID)),
			slog.String("error", err.Error()),
		)
	}
}

// Bind registers a handler on src for every event kind the engine
// consumes. Payloads that fail validation are dropped with a warning. A src
// that reports reconnects also triggers a reconciliation on each one while
// Run is active. Bind each source once.
func (e *Engine) Bind(src transport.EventSource) {
	for _, kind := range model.EventTypes {
		src.OnEvent(string(kind), func(ctx context.Context, payload json.RawMessage) {
			ev, err := model.ParseEvent(kind, payload)
			if err != nil {
				e.logger.Warn("dropping malformed event",
					slog.String("event", string(kind)),
					slog.String("error", err.Error()),
				)
				return
			}
			e.Apply(ctx, ev)
		})
	}
	if n, ok := src.(connectNotifier); ok {
		n.OnConnect(e.requestReconcile)
	}
}

// Reconcile rebuilds the relationship sets and peer profiles from the
// remote snapshot. Only a failure to fetch the snapshot is returned.
func (e *Engine) Reconcile(ctx context.Context) (*reconcile.Report, error) {
	report, err := e.reconciler.Reconcile(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	now := e.clock.Now()
	e.lastReconciled = &now
	e.commitLocked()
	e.mu.Unlock()

	return report, nil
}

// ReplaceRelationships swaps the relationship sets for snapshot in a
// single step and returns the peers they now hold
func (e *Engine) ReplaceRelationships(snapshot model.RelationshipSnapshot) model.PeerSet {
	e.mu.Lock()
	defer e.mu.Unlock()

	rel := e.self.Relationships
	before := rel.Clone()
	rel.Replace(snapshot)
	if !before.Equal(rel) {
		e.commitLocked()
	}
	return rel.All()
}

// Profile returns the cached profile of a peer
func (e *Engine) Profile(ctx context.Context, id model.PeerID) (*model.PeerProfile, error) {
	return e.cache.GetProfile(ctx, id)
}

// Subscribed reports whether id has a push-update subscription
func (e *Engine) Subscribed(id model.PeerID) bool {
	return e.subscriptions.Registered(id)
}
