package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/telemetry"
	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/job-orchestrator/internal/worker/scheduling"
)

// processJob runs one dispatched job under the job timeout
func (w *Worker) processJob(ctx context.Context, payload scheduling.Payload) {
	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	telemetry.JobsInFlight.Inc()
	defer telemetry.JobsInFlight.Dec()

	start := time.Now()
	err := w.executor.Execute(jobCtx, payload.JobID)
	if err == nil {
		w.logger.Debug("Job attempt finished",
			slog.String("job_id", payload.JobID),
			slog.Duration("duration", time.Since(start)),
		)
		return
	}

	var terminal *domain.TerminalError
	if errors.As(err, &terminal) {
		w.logger.Error("Job ended in failure",
			slog.String("job_id", terminal.JobID),
			slog.String("job_type", terminal.JobType),
			slog.String("error", terminal.Message),
		)
		return
	}

	// the job could not be loaded; its registration is still held, so the
	// trigger has to come back or the job is never attempted again
	w.logger.Error("Job processing failed, rearming trigger",
		slog.String("job_id", payload.JobID),
		slog.String("error", err.Error()),
		slog.Duration("rearm_delay", w.rearmDelay),
	)
	w.rearm(payload, time.Now().Add(w.rearmDelay))
}
