package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"uplite/internal/repo"
)

// Sweeper periodically deletes history beyond the retention window across
// all targets. Appends already evict per target; the sweep catches
// targets that stopped being checked.
type Sweeper struct {
	Logger    *zap.Logger
	History   repo.HistoryStore
	Retention time.Duration
}

func NewSweeper(logger *zap.Logger, history repo.HistoryStore, retention time.Duration) *Sweeper {
	if retention <= 0 {
		retention = repo.DefaultRetention
	}
	return &Sweeper{Logger: logger, History: history, Retention: retention}
}

// Schedule registers the sweep on the given cron runner.
func (s *Sweeper) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, s.Sweep)
	return err
}

func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.Retention)
	n, err := s.History.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.Logger.Warn("sweep_error", zap.Error(err))
		return
	}
	s.Logger.Info("sweep_done",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", n),
	)
}
