package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically runs the timeout sweep against the Manager.
type Sweeper struct {
	manager *Manager
	poll    time.Duration
	logger  *slog.Logger
}

// NewSweeper creates a Sweeper polling at the given interval.
// If pollInterval is <= 0, it defaults to one minute.
func NewSweeper(manager *Manager, pollInterval time.Duration) *Sweeper {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Sweeper{
		manager: manager,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run sweeps until ctx is cancelled. A failed pass is logged and retried
// on the next tick; the sweep is idempotent so this is always safe.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.poll):
		}

		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("timeout sweep failed", "error", err)
		}
	}
}

// RunOnce performs a single sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	return s.manager.SweepTimeouts(ctx)
}
