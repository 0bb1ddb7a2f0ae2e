package scheduler

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
)

const (
	TaskFlushSessions = "flush-sessions"
	TaskSweepOrphans  = "sweep-orphans"
)

type SessionFlusher interface {
	FlushDirty(ctx context.Context) (int, error)
}

type OrphanSweeper interface {
	SweepOrphans(ctx context.Context, ttl time.Duration) (int, error)
}

// MaintenanceTasks bounds the collaboration loss window in time and reclaims
// chunks left behind by interrupted uploads.
func MaintenanceTasks(f SessionFlusher, sw OrphanSweeper, flushEvery, sweepEvery, orphanTTL time.Duration, log logging.Logger) []Task {
	return []Task{
		{
			Name:  TaskFlushSessions,
			Every: flushEvery,
			Handler: func(ctx context.Context) error {
				n, err := f.FlushDirty(ctx)
				if n > 0 {
					log.Debug(ctx, "flushed sessions", "count", n)
				}
				return err
			},
		},
		{
			Name:  TaskSweepOrphans,
			Every: sweepEvery,
			Handler: func(ctx context.Context) error {
				n, err := sw.SweepOrphans(ctx, orphanTTL)
				if n > 0 {
					log.Info(ctx, "swept orphan chunks", "count", n)
				}
				return err
			},
		},
	}
}
