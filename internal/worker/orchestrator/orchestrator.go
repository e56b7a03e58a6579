// Package orchestrator runs a job's behavior and drives its status, retry and
// cleanup bookkeeping.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/cuongbtq/job-orchestrator/internal/telemetry"
	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/job-orchestrator/internal/worker/jobs"
	"github.com/cuongbtq/job-orchestrator/internal/worker/retry"
)

// Store is the persistence the orchestrator and the behaviors it runs need
type Store interface {
	jobs.TaskStore
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	UpdateJobStatus(ctx context.Context, jobID, status, errorMsg string) error
	CompleteTasksByJob(ctx context.Context, jobID string) (int, error)
}

// Behaviors resolves a job type to its unit of work
type Behaviors interface {
	GetJobType(name string) (jobs.Behavior, error)
}

// RetryPolicy tracks attempts and re-submits failed jobs
type RetryPolicy interface {
	GetRetryInfo(ctx context.Context, jobID string) (*domain.RetryRecord, error)
	ShouldRetryJob(ctx context.Context, jobID string) (bool, error)
	ScheduleRetry(ctx context.Context, job *domain.Job, errorMessage string) error
	RemoveRetryInfo(ctx context.Context, jobID string) error
}

// Cleaner reconciles finished jobs out of the scheduler and store
type Cleaner interface {
	CleanupCompletedJob(ctx context.Context, jobID string) error
	RemoveFromScheduler(ctx context.Context, job *domain.Job) (bool, error)
}

// StatusNotifier broadcasts status changes. Delivery is best effort.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, jobID, jobType, status, errorMessage string) error
}

// Config holds orchestrator dependencies
type Config struct {
	Logger         *slog.Logger
	Store          Store
	Registry       Behaviors
	Retry          RetryPolicy
	Cleanup        Cleaner
	Notifier       StatusNotifier
	Reports        jobs.ReportCreator
	ReportNotifier jobs.ReportNotifier
}

// Orchestrator executes jobs. It holds no per-job state and is safe to call
// concurrently, once per in-flight job.
type Orchestrator struct {
	logger         *slog.Logger
	store          Store
	registry       Behaviors
	retry          RetryPolicy
	cleanup        Cleaner
	notifier       StatusNotifier
	reports        jobs.ReportCreator
	reportNotifier jobs.ReportNotifier
}

// New creates an Orchestrator
func New(cfg *Config) *Orchestrator {
	return &Orchestrator{
		logger:         cfg.Logger,
		store:          cfg.Store,
		registry:       cfg.Registry,
		retry:          cfg.Retry,
		cleanup:        cfg.Cleanup,
		notifier:       cfg.Notifier,
		reports:        cfg.Reports,
		reportNotifier: cfg.ReportNotifier,
	}
}

// Execute runs one attempt of a job.
//
// A missing job, or one that is already terminal, is logged and Execute
// returns nil. A retryable failure with budget left is re-submitted and also
// returns nil. Only a terminal failure is returned, as *domain.TerminalError,
// after the FAILED status, cleanup and notification have been committed.
func (o *Orchestrator) Execute(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		o.logger.Error("Job not found, skipping execution",
			slog.String("job_id", jobID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	if domain.IsTerminalJobStatus(job.Status) {
		o.logger.Warn("Job already finished, skipping execution",
			slog.String("job_id", job.ID),
			slog.String("status", job.Status),
		)
		return nil
	}

	attempt := 1
	if info, err := o.retry.GetRetryInfo(ctx, job.ID); err != nil {
		o.logger.Warn("Failed to load retry info",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	} else if info != nil {
		attempt = info.RetryCount + 1
	}

	o.logger.Info("Executing job",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.Int("attempt", attempt),
	)

	if err := o.store.UpdateJobStatus(ctx, job.ID, domain.JobStatusRunning, ""); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			o.logger.Warn("Job finished concurrently, skipping execution",
				slog.String("job_id", job.ID),
			)
			return nil
		}
		return o.handleFailure(ctx, job, fmt.Sprintf("failed to mark job running: %v", err), err)
	}
	job.Status = domain.JobStatusRunning
	o.notify(ctx, job, domain.JobStatusRunning, "")

	// resolved after RUNNING so that FAILED is always reached through RUNNING
	behavior, err := o.registry.GetJobType(job.JobType)
	if err != nil {
		// no later attempt can resolve an unregistered type
		return o.fail(ctx, job, err.Error(), err)
	}

	result, err := o.runBehavior(ctx, behavior, job)
	if err == nil && result.Success {
		return o.complete(ctx, job, result)
	}

	message := result.ErrorMessage
	if err != nil {
		message = err.Error()
	}
	return o.handleFailure(ctx, job, message, err)
}

// runBehavior gives the behavior a fresh scope and turns a panic into an error
func (o *Orchestrator) runBehavior(ctx context.Context, behavior jobs.Behavior, job *domain.Job) (result jobs.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Job behavior panicked",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			result = jobs.Result{}
			err = fmt.Errorf("job behavior panicked: %v", r)
		}
	}()

	scope := &jobs.Scope{
		Tasks:    o.store,
		Reports:  o.reports,
		Notifier: o.reportNotifier,
		Logger:   o.logger.With(slog.String("job_id", job.ID), slog.String("job_type", job.JobType)),
	}

	return behavior.ExecuteCore(ctx, scope, job)
}

func (o *Orchestrator) complete(ctx context.Context, job *domain.Job, result jobs.Result) error {
	// bookkeeping must land even if the execution context was canceled
	ctx = context.WithoutCancel(ctx)

	completed, err := o.store.CompleteTasksByJob(ctx, job.ID)
	if err != nil {
		return o.handleFailure(ctx, job, fmt.Sprintf("failed to complete tasks: %v", err), err)
	}

	if err := o.store.UpdateJobStatus(ctx, job.ID, domain.JobStatusCompleted, ""); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			o.logger.Warn("Job finished concurrently, not marking completed",
				slog.String("job_id", job.ID),
			)
			return nil
		}
		return o.handleFailure(ctx, job, fmt.Sprintf("failed to mark job completed: %v", err), err)
	}
	job.Status = domain.JobStatusCompleted

	o.cleanupJob(ctx, job)
	o.removeRetryInfo(ctx, job)
	o.notify(ctx, job, domain.JobStatusCompleted, "")

	telemetry.JobsCompleted.Inc()
	o.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.Int("affected_count", result.AffectedCount),
		slog.Int("tasks_completed", completed),
	)

	return nil
}

// handleFailure is the single decision point for structured failures and
// returned errors alike.
func (o *Orchestrator) handleFailure(ctx context.Context, job *domain.Job, message string, cause error) error {
	ctx = context.WithoutCancel(ctx)

	if !retry.ShouldRetryOnError(message) {
		return o.fail(ctx, job, message, cause)
	}

	budget, err := o.hasRetryBudget(ctx, job)
	if err != nil {
		o.logger.Error("Failed to check retry budget",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return o.fail(ctx, job, message, cause)
	}
	if !budget {
		return o.fail(ctx, job, message, cause)
	}

	// the registration of this run has to go before re-submission, otherwise
	// the idempotent submit sees the key and does nothing
	if _, err := o.cleanup.RemoveFromScheduler(ctx, job); err != nil {
		o.logger.Warn("Failed to release scheduler registration before retry",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := o.retry.ScheduleRetry(ctx, job, message); err != nil {
		o.logger.Error("Failed to schedule retry",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return o.fail(ctx, job, message, cause)
	}

	return nil
}

// hasRetryBudget treats a job without a retry record as never having failed
func (o *Orchestrator) hasRetryBudget(ctx context.Context, job *domain.Job) (bool, error) {
	info, err := o.retry.GetRetryInfo(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if info == nil {
		return true, nil
	}
	return o.retry.ShouldRetryJob(ctx, job.ID)
}

func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, message string, cause error) error {
	ctx = context.WithoutCancel(ctx)

	// the RUNNING update of this attempt failed; FAILED is only reachable from RUNNING
	if job.Status == domain.JobStatusQueued {
		if err := o.store.UpdateJobStatus(ctx, job.ID, domain.JobStatusRunning, ""); err == nil {
			job.Status = domain.JobStatusRunning
			o.notify(ctx, job, domain.JobStatusRunning, "")
		}
	}

	if err := o.store.UpdateJobStatus(ctx, job.ID, domain.JobStatusFailed, message); err != nil {
		o.logger.Error("Failed to mark job failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	} else {
		job.Status = domain.JobStatusFailed
	}

	o.cleanupJob(ctx, job)
	o.removeRetryInfo(ctx, job)
	o.notify(ctx, job, domain.JobStatusFailed, message)

	telemetry.JobsFailed.Inc()
	o.logger.Error("Job failed",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.String("error", message),
	)

	return domain.NewTerminalError(job, message, cause)
}

func (o *Orchestrator) cleanupJob(ctx context.Context, job *domain.Job) {
	if err := o.cleanup.CleanupCompletedJob(ctx, job.ID); err != nil {
		o.logger.Warn("Job cleanup failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) removeRetryInfo(ctx context.Context, job *domain.Job) {
	if err := o.retry.RemoveRetryInfo(ctx, job.ID); err != nil {
		o.logger.Warn("Failed to remove retry info",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) notify(ctx context.Context, job *domain.Job, status, errorMessage string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifyStatus(ctx, job.ID, job.JobType, status, errorMessage); err != nil {
		o.logger.Warn("Failed to notify job status",
			slog.String("job_id", job.ID),
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
	}
}
