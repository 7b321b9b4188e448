// Package retention deletes audit rows older than the configured window.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/attrition/internal/metrics"
)

// DefaultDays is the retention window used when none is configured.
const DefaultDays = 365

// Deleter removes audit requests older than a number of days and reports how
// many were removed. Dependent prediction rows cascade.
type Deleter interface {
	DeleteRequestsOlderThan(ctx context.Context, days int) (int64, error)
}

// Sweeper runs retention cleanups, once on demand or periodically.
type Sweeper struct {
	store    Deleter
	days     int
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(store Deleter, days int, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, days: days, interval: interval, log: slog.Default()}
}

// Cleanup deletes requests older than retentionDays. Running it twice with
// no new data deletes nothing the second time.
func (s *Sweeper) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days must not be negative, got %d", retentionDays)
	}
	n, err := s.store.DeleteRequestsOlderThan(ctx, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("retention cleanup: %w", err)
	}
	metrics.RetentionDeleted.Add(float64(n))
	return n, nil
}

// Run sweeps once immediately and then on every interval until ctx is done.
// A zero interval disables the loop. Failures are logged and retried on the
// next tick.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("retention sweep disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.Cleanup(ctx, s.days)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("retention sweep failed", "error", err)
		}
		return
	}
	s.log.Info("retention sweep complete", "deleted", n, "retention_days", s.days)
}
