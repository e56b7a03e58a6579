// Package cleanup reconciles terminal jobs out of the scheduler and the store.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/job-orchestrator/internal/telemetry"
	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/job-orchestrator/internal/worker/scheduling"
	"github.com/hashicorp/go-multierror"
)

// Store is the job access the cleanup service needs
type Store interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobsByStatus(ctx context.Context, status string) ([]domain.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// Config selects what cleanup removes. The flags are independent: a job can
// leave the live scheduler and stay in the store for auditing.
type Config struct {
	RemoveFromScheduler bool
	DeleteFromStore     bool
}

// SweepResult summarizes a bulk cleanup pass
type SweepResult struct {
	Attempted int
	Failed    int
	Deleted   int
}

// Service removes terminal jobs from the scheduler and/or the store
type Service struct {
	capability scheduling.Capability
	store      Store
	cfg        Config
	logger     *slog.Logger
}

// NewService creates a cleanup Service
func NewService(capability scheduling.Capability, store Store, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		capability: capability,
		store:      store,
		cfg:        cfg,
		logger:     logger,
	}
}

// RemoveFromScheduler drops the scheduler registration of a job regardless of
// configuration. It reports whether a registration existed.
func (s *Service) RemoveFromScheduler(ctx context.Context, job *domain.Job) (bool, error) {
	key := scheduling.Key(job.JobType, job.ID)

	exists, err := s.capability.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	removed, err := s.capability.Remove(ctx, key)
	if err != nil {
		return false, err
	}
	if removed {
		telemetry.CleanupRemoved.Inc()
	}
	return removed, nil
}

// CleanupCompletedJob removes a single job according to the configuration. A
// job that is already gone from the store is not an error.
func (s *Service) CleanupCompletedJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		s.logger.Debug("Job already removed, nothing to clean up",
			slog.String("job_id", jobID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load job for cleanup: %w", err)
	}

	if s.cfg.RemoveFromScheduler {
		removed, err := s.RemoveFromScheduler(ctx, job)
		if err != nil {
			telemetry.CleanupFailures.Inc()
			return fmt.Errorf("failed to remove job from scheduler: %w", err)
		}
		s.logger.Debug("Scheduler cleanup done",
			slog.String("job_id", job.ID),
			slog.Bool("removed", removed),
		)
	}

	if s.cfg.DeleteFromStore {
		if err := s.store.DeleteJob(ctx, job.ID); err != nil && !errors.Is(err, domain.ErrJobNotFound) {
			telemetry.CleanupFailures.Inc()
			return fmt.Errorf("failed to delete job from store: %w", err)
		}
		s.logger.Debug("Job deleted from store",
			slog.String("job_id", job.ID),
		)
	}

	return nil
}

// CleanupAllCompletedJobs sweeps every COMPLETED job out of the scheduler.
// Per-job failures are counted and logged once at the end; they never abort
// the sweep and are never returned. Only failing to list jobs is an error.
func (s *Service) CleanupAllCompletedJobs(ctx context.Context) (SweepResult, error) {
	jobs, err := s.store.ListJobsByStatus(ctx, domain.JobStatusCompleted)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list completed jobs: %w", err)
	}

	var (
		result SweepResult
		errs   *multierror.Error
	)

	for i := range jobs {
		job := &jobs[i]
		result.Attempted++

		if _, err := s.RemoveFromScheduler(ctx, job); err != nil {
			result.Failed++
			telemetry.CleanupFailures.Inc()
			errs = multierror.Append(errs, fmt.Errorf("job %s: %w", job.ID, err))
			continue
		}

		if s.cfg.DeleteFromStore {
			if err := s.store.DeleteJob(ctx, job.ID); err != nil && !errors.Is(err, domain.ErrJobNotFound) {
				result.Failed++
				telemetry.CleanupFailures.Inc()
				errs = multierror.Append(errs, fmt.Errorf("job %s: %w", job.ID, err))
				continue
			}
			result.Deleted++
		}
	}

	if errs.ErrorOrNil() != nil {
		s.logger.Warn("Some jobs could not be cleaned up",
			slog.Int("failed", result.Failed),
			slog.String("first_error", errs.Errors[0].Error()),
		)
		s.logger.Debug("Cleanup errors", slog.String("errors", errs.Error()))
	}

	// the count is of attempted removals, failures included
	s.logger.Info(fmt.Sprintf("Cleanup completed: %d jobs removed from scheduler", result.Attempted),
		slog.Int("attempted", result.Attempted),
		slog.Int("failed", result.Failed),
		slog.Int("deleted", result.Deleted),
	)

	return result, nil
}
