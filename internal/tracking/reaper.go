package tracking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leadfunnel/leadfunnel/internal/metrics"
)

// Abandoner flags idle sessions.
type Abandoner interface {
	MarkAbandoned(ctx context.Context, idleSince time.Time) (int64, error)
}

// Reaper periodically marks sessions with no activity for IdleAfter as abandoned.
type Reaper struct {
	store     Abandoner
	idleAfter time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewReaper(s Abandoner, idleAfter, interval time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		store:     s,
		idleAfter: idleAfter,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// ReapOnce runs a single pass and returns the number of sessions flagged.
func (r *Reaper) ReapOnce(ctx context.Context) (int64, error) {
	n, err := r.store.MarkAbandoned(ctx, r.now().Add(-r.idleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.Abandoned.Add(float64(n))
		r.logger.Info("marked idle sessions abandoned", zap.Int64("count", n))
	}
	return n, nil
}

// Run reaps immediately and then every interval until ctx is cancelled.
// Failed passes are logged and retried on the next tick.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("session reaper started",
		zap.Duration("idle_after", r.idleAfter),
		zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.ReapOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("session reaper pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			r.logger.Info("session reaper stopped")
			return nil
		case <-ticker.C:
		}
	}
}
