// Package reconcile rebuilds the relationship sets and the profile cache
// from an authoritative snapshot.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/storage"
	"github.com/mcoot/relsync/internal/transport"
)

// ErrSnapshotUnavailable is returned when the relationship snapshot could
// not be fetched. No local state has been changed.
var ErrSnapshotUnavailable = errors.New("relationship snapshot unavailable")

// RelationshipStore swaps the relationship sets for a snapshot in one step
// and returns every peer now in any of the sets
type RelationshipStore interface {
	ReplaceRelationships(snapshot model.RelationshipSnapshot) model.PeerSet
}

// Subscriber ensures peers have a push-update subscription
type Subscriber interface {
	EnsureSubscribed(ctx context.Context, peers model.PeerSet)
}

// Report summarizes one reconciliation
type Report struct {
	Peers   int            `json:"peers"`
	Fetched int            `json:"fetched"`
	Failed  []model.PeerID `json:"failed"`
}

// Config holds configuration for the reconciliation engine
type Config struct {
	// FetchConcurrency bounds the number of profile fetches in flight
	FetchConcurrency int
	// FetchRate limits profile fetches per second
	FetchRate rate.Limit
	FetchBurst int
}

// DefaultConfig returns default reconciliation configuration
func DefaultConfig() Config {
	return Config{
		FetchConcurrency: 4,
		FetchRate:        20,
		FetchBurst:       4,
	}
}

// Engine runs reconciliations
type Engine struct {
	requester     transport.Requester
	relationships RelationshipStore
	subscriber    Subscriber
	cache         storage.ProfileCache
	limiter       *rate.Limiter
	concurrency   int
	logger        *slog.Logger
}

// New creates a new reconciliation Engine
func New(
	requester transport.Requester,
	relationships RelationshipStore,
	subscriber Subscriber,
	cache storage.ProfileCache,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	def := DefaultConfig()
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = def.FetchConcurrency
	}
	if cfg.FetchRate <= 0 {
		cfg.FetchRate = def.FetchRate
	}
	if cfg.FetchBurst <= 0 {
		cfg.FetchBurst = def.FetchBurst
	}
	return &Engine{
		requester:     requester,
		relationships: relationships,
		subscriber:    subscriber,
		cache:         cache,
		limiter:       rate.NewLimiter(cfg.FetchRate, cfg.FetchBurst),
		concurrency:   cfg.FetchConcurrency,
		logger:        logger.With(slog.String("component", "reconcile")),
	}
}

// Reconcile fetches the relationship snapshot, replaces the local sets with
// it, subscribes to every listed peer and refreshes their cached profiles.
// Only a failure to fetch the snapshot is returned; per-peer failures are
// logged and listed in the Report.
func (e *Engine) Reconcile(ctx context.Context) (*Report, error) {
	start := time.Now()

	snapshot, err := e.fetchSnapshot(ctx)
	if err != nil {
		e.logger.Error("failed to fetch relationship snapshot", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}

	peers := e.relationships.ReplaceRelationships(snapshot)
	e.subscriber.EnsureSubscribed(ctx, peers)

	report := e.fetchProfiles(ctx, peers.Slice())

	e.logger.Info("reconciled relationships",
		slog.Int("peers", report.Peers),
		slog.Int("fetched", report.Fetched),
		slog.Int("failed", len(report.Failed)),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

// fetchSnapshot requests the relationship lists. A reply without data or
// with an entry missing its id is a transport failure.
func (e *Engine) fetchSnapshot(ctx context.Context) (model.RelationshipSnapshot, error) {
	var list *listResponse
	if err := e.requester.Request(ctx, transport.MethodRelationshipList, struct{}{}, &list); err != nil {
		return model.RelationshipSnapshot{}, err
	}
	if list == nil {
		return model.RelationshipSnapshot{}, &transport.Error{Method: transport.MethodRelationshipList, Reason: "response has no data"}
	}
	snapshot, err := list.snapshot()
	if err != nil {
		return model.RelationshipSnapshot{}, &transport.Error{Method: transport.MethodRelationshipList, Reason: "malformed response", Err: err}
	}
	return snapshot, nil
}

func (e *Engine) fetchProfiles(ctx context.Context, ids []model.PeerID) *Report {
	failed := make([]bool, len(ids))
	var fetched atomic.Int64

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := e.fetchProfile(ctx, id); err != nil {
				failed[i] = true
				e.logger.Warn("failed to refresh peer profile",
					slog.Int64("peer_id", int64(id)),
					slog.String("error", err.Error()),
				)
				return nil
			}
			fetched.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Peers: len(ids), Fetched: int(fetched.Load()), Failed: []model.PeerID{}}
	for i, id := range ids {
		if failed[i] {
			report.Failed = append(report.Failed, id)
		}
	}
	return report
}

func (e *Engine) fetchProfile(ctx context.Context, id model.PeerID) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	var info *infoResponse
	if err := e.requester.Request(ctx, transport.MethodPeerInfo, infoParams{UserID: id.String()}, &info); err != nil {
		return err
	}
	if info == nil {
		return &transport.Error{Method: transport.MethodPeerInfo, Reason: "empty response"}
	}

	if err := e.cache.PutProfile(ctx, info.profile(id)); err != nil {
		return fmt.Errorf("cache profile: %w", err)
	}
	return nil
}
