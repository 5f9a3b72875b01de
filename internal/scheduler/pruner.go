package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/llmuptime/internal/repo"
)

// Pruner deletes history older than the retention window on a cron schedule.
type Pruner struct {
	Logger        *zap.Logger
	Store         repo.HistoryStore
	Schedule      string
	RetentionDays int

	now func() time.Time
}

func NewPruner(logger *zap.Logger, store repo.HistoryStore, schedule string, retentionDays int) *Pruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retentionDays < 1 {
		retentionDays = repo.DefaultRetentionDays
	}
	return &Pruner{
		Logger:        logger,
		Store:         store,
		Schedule:      schedule,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run registers the cron job and blocks until ctx is cancelled. An empty
// schedule disables pruning.
func (p *Pruner) Run(ctx context.Context) error {
	if p.Schedule == "" {
		p.Logger.Info("pruner_disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(p.Schedule, func() { _, _ = p.RunOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	p.Logger.Info("pruner_started",
		zap.String("schedule", p.Schedule),
		zap.Int("retention_days", p.RetentionDays),
	)

	<-ctx.Done()
	// wait for a running prune to finish
	<-c.Stop().Done()
	p.Logger.Info("pruner_stopped")
	return nil
}

// RunOnce deletes rows older than the retention window and returns the count.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	before := repo.Before(p.now(), p.RetentionDays)
	n, err := p.Store.Prune(ctx, before)
	if err != nil {
		p.Logger.Warn("prune_error", zap.Time("before", before), zap.Error(err))
		return 0, err
	}
	p.Logger.Info("prune_done", zap.Time("before", before), zap.Int64("deleted", n))
	return n, nil
}
