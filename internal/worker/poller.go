package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/worker/scheduling"
)

// pollTriggers acquires due triggers every poll interval and dispatches them
// to the pool. It returns on shutdown.
func (w *Worker) pollTriggers(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if !w.dispatchDue(ctx) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
		}
	}
}

// dispatchDue drains every trigger that is due. It returns false once the
// worker is shutting down.
func (w *Worker) dispatchDue(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-w.stopChan:
			return false
		default:
		}

		payload, found, err := w.source.Acquire(ctx, time.Now())
		if err != nil {
			w.logger.Error("Failed to acquire trigger",
				slog.String("error", err.Error()),
			)
			return true
		}
		if !found {
			return true
		}

		select {
		case w.jobsChan <- payload:
			w.logger.Debug("Job dispatched to worker pool",
				slog.String("job_id", payload.JobID),
			)
		case <-ctx.Done():
			w.rearm(payload, time.Now())
			return false
		case <-w.stopChan:
			w.rearm(payload, time.Now())
			return false
		}
	}
}

// rearm puts back the trigger of an acquired job so it fires again at at
func (w *Worker) rearm(payload scheduling.Payload, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := scheduling.Key(payload.JobType, payload.JobID)
	if _, err := w.source.Rearm(ctx, key, at); err != nil {
		w.logger.Error("Failed to rearm trigger",
			slog.String("job_id", payload.JobID),
			slog.String("error", err.Error()),
		)
	}
}
