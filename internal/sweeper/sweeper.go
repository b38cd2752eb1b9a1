// Package sweeper purges expired, unanswered auth requests on a cron
// schedule. Decided requests are kept — only requests nobody answered inside
// the expiry window are removed.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vaultum/keygate/internal/observability"
	"github.com/vaultum/keygate/internal/storage"
)

// Sweeper deletes expired pending auth requests.
type Sweeper struct {
	store      storage.AuthRequestStore
	metrics    *observability.Metrics
	logger     *slog.Logger
	schedule   string
	expiration time.Duration

	cron *cron.Cron
}

// New creates a Sweeper. expiration is the window after which an unanswered
// request can never be decided and is safe to remove.
func New(store storage.AuthRequestStore, metrics *observability.Metrics, logger *slog.Logger, schedule string, expiration time.Duration) *Sweeper {
	return &Sweeper{
		store:      store,
		metrics:    metrics,
		logger:     logger,
		schedule:   schedule,
		expiration: expiration,
	}
}

// Start schedules the purge job. Returns a stop function.
func (s *Sweeper) Start(ctx context.Context) (func(), error) {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		return nil, err
	}
	c.Start()
	s.cron = c

	s.logger.InfoContext(ctx, "expiry sweeper started",
		slog.String("schedule", s.schedule),
		slog.String("expiration", s.expiration.String()),
	)

	return func() {
		stopCtx := c.Stop()
		<-stopCtx.Done()
		s.logger.Info("expiry sweeper stopped")
	}, nil
}

// Sweep runs one purge cycle.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.expiration)
	purged, err := s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if purged > 0 {
		if s.metrics != nil {
			s.metrics.ExpiredPurged.Add(float64(purged))
		}
		s.logger.InfoContext(ctx, "expired auth requests purged",
			slog.Int64("count", purged),
		)
	}
}
