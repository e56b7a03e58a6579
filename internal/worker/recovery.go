package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/job-orchestrator/internal/worker/scheduling"
)

// StartupState records whether startup recovery already ran in this process.
// It is created by main and shared by every Worker it starts.
type StartupState struct {
	mu  sync.Mutex
	ran bool
}

// NewStartupState creates a StartupState that has not run yet
func NewStartupState() *StartupState {
	return &StartupState{}
}

// HasRun reports whether recovery already ran
func (s *StartupState) HasRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ran
}

// begin returns true exactly once
func (s *StartupState) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ran {
		return false
	}
	s.ran = true
	return true
}

// recoverPendingJobs resubmits every QUEUED or RUNNING job. Submission is
// idempotent; a job whose trigger was lost while it was in flight gets it
// back. Failures are logged and the pass continues.
func (w *Worker) recoverPendingJobs(ctx context.Context) {
	if w.jobs == nil || w.scheduler == nil {
		return
	}

	recovered, failed := 0, 0
	for _, status := range []string{domain.JobStatusQueued, domain.JobStatusRunning} {
		jobs, err := w.jobs.ListJobsByStatus(ctx, status)
		if err != nil {
			w.logger.Error("Failed to list jobs for recovery",
				slog.String("status", status),
				slog.String("error", err.Error()),
			)
			continue
		}

		for i := range jobs {
			job := &jobs[i]
			if err := w.scheduler.ScheduleJob(ctx, job); err != nil {
				failed++
				w.logger.Warn("Failed to recover job",
					slog.String("job_id", job.ID),
					slog.String("job_type", job.JobType),
					slog.String("error", err.Error()),
				)
				continue
			}

			if _, err := w.source.Rearm(ctx, scheduling.Key(job.JobType, job.ID), time.Now()); err != nil {
				failed++
				w.logger.Warn("Failed to rearm recovered job",
					slog.String("job_id", job.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			recovered++
		}
	}

	w.logger.Info("Startup recovery completed",
		slog.Int("recovered", recovered),
		slog.Int("failed", failed),
	)
}
