package server

import (
	"context"
	"time"

	"github.com/oshokin/release-mirror/internal/logger"
)

// runScheduler runs a pass immediately and then once per interval until ctx is done.
// Pass errors are logged and do not stop the schedule.
func runScheduler(ctx context.Context, syncer Syncer, interval time.Duration) {
	ctx = logger.WithName(ctx, "scheduler")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.InfoKV(ctx, "Scheduler started", "interval", interval)

	for {
		if _, err := syncer.Sync(ctx); err != nil && ctx.Err() == nil {
			logger.WarnKV(ctx, "Scheduled pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Scheduler stopped")

			return
		case <-ticker.C:
		}
	}
}
