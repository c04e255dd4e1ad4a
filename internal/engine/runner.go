package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/relsync/internal/dependencies/random"
)

// Stream is a reconnectable push event connection
type Stream interface {
	Run(ctx context.Context) error
}

// connectNotifier is implemented by event sources that report each
// (re)connect
type connectNotifier interface {
	OnConnect(fn func(ctx context.Context))
}

// RunConfig controls the background loops started by Run
type RunConfig struct {
	// ReconcileInterval is the period between scheduled reconciliations;
	// zero disables them
	ReconcileInterval time.Duration
	// ReconnectDelay and ReconnectJitter set the pause before the event
	// stream is reopened
	ReconnectDelay  time.Duration
	ReconnectJitter time.Duration
}

// DefaultRunConfig returns default background loop configuration
func DefaultRunConfig() RunConfig {
	return RunConfig{
		ReconcileInterval: 5 * time.Minute,
		ReconnectDelay:    time.Second,
		ReconnectJitter:   2 * time.Second,
	}
}

// Run keeps stream connected and reconciles on every connect and every
// ReconcileInterval until ctx is cancelled. Stream events must already be
// bound with Bind, which also hooks the connect-triggered reconciliation.
func (e *Engine) Run(ctx context.Context, stream Stream, cfg RunConfig, rnd random.Random) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.reconcileLoop(ctx, e.kick, cfg.ReconcileInterval)
		return nil
	})
	g.Go(func() error {
		e.streamLoop(ctx, stream, cfg, rnd)
		return nil
	})
	return g.Wait()
}

// requestReconcile asks a running reconcile loop for one more pass. Requests
// made while one is already pending are merged.
func (e *Engine) requestReconcile(context.Context) {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

func (e *Engine) reconcileLoop(ctx context.Context, kick <-chan struct{}, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-kick:
		case <-tick:
		}

		if _, err := e.Reconcile(ctx); err != nil && ctx.Err() == nil {
			e.logger.Warn("reconciliation failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) streamLoop(ctx context.Context, stream Stream, cfg RunConfig, rnd random.Random) {
	for {
		err := stream.Run(ctx)
		if ctx.Err() != nil {
			return
		}

		delay := random.Jitter(rnd, cfg.ReconnectDelay, cfg.ReconnectJitter)
		if err != nil {
			e.logger.Warn("event stream failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
		} else {
			e.logger.Info("event stream ended", slog.Duration("retry_in", delay))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
