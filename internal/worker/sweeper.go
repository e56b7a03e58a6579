package worker

import (
	"context"
	"log/slog"
	"time"
)

// runSweeper runs a cleanup sweep every sweep interval until shutdown
func (w *Worker) runSweeper(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if _, err := w.sweeper.CleanupAllCompletedJobs(ctx); err != nil {
				w.logger.Error("Cleanup sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
