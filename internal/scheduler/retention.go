package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeboard/internal/repo"
)

// Retention deletes observations older than MaxAge on a cron schedule.
type Retention struct {
	Logger   *zap.Logger
	Results  repo.ObservationStore
	MaxAge   time.Duration
	Schedule string
	Now      func() time.Time
}

func NewRetention(logger *zap.Logger, results repo.ObservationStore, maxAge time.Duration, schedule string) *Retention {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "@daily"
	}
	return &Retention{
		Logger:   logger,
		Results:  results,
		MaxAge:   maxAge,
		Schedule: schedule,
		Now:      time.Now,
	}
}

// PruneOnce removes everything observed before Now()-MaxAge.
func (r *Retention) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := r.Now().UTC().Add(-r.MaxAge)
	n, err := r.Results.PruneObservations(ctx, cutoff)
	if err != nil {
		r.Logger.Warn("retention_prune_error", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, err
	}
	r.Logger.Info("retention_pruned", zap.Time("cutoff", cutoff), zap.Int64("removed", n))
	return n, nil
}

// Start schedules PruneOnce and returns immediately. The cron runner stops
// when ctx is cancelled. A non-positive MaxAge disables retention.
func (r *Retention) Start(ctx context.Context) error {
	if r.MaxAge <= 0 {
		r.Logger.Info("retention_disabled")
		return nil
	}
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(r.Schedule, func() { _, _ = r.PruneOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", r.Schedule, err)
	}
	c.Start()
	r.Logger.Info("retention_started",
		zap.String("schedule", r.Schedule),
		zap.Duration("max_age", r.MaxAge),
	)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		r.Logger.Info("retention_stopped")
	}()
	return nil
}
