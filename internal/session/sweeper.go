package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically evicts idle sessions from a Store.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates an eviction sweeper running at the given interval.
func NewSweeper(store *Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled, evicting idle sessions on each
// tick. Callers must track the goroutine with a WaitGroup.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

// runOnce executes a single eviction cycle.
func (s *Sweeper) runOnce() {
	if n := s.store.EvictIdle(time.Now()); n > 0 {
		s.logger.Info("evicted idle sessions", "count", n, "remaining", s.store.Count())
	}
}
