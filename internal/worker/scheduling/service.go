package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/telemetry"
	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
)

// TypeValidator resolves whether a job type can be run.
type TypeValidator interface {
	IsValidJobType(name string) bool
}

// Service submits jobs to the scheduling capability. Submission is
// idempotent per job: a key that is already registered is left alone.
type Service struct {
	capability Capability
	types      TypeValidator
	logger     *slog.Logger
}

// NewService creates a scheduling Service
func NewService(capability Capability, types TypeValidator, logger *slog.Logger) *Service {
	return &Service{
		capability: capability,
		types:      types,
		logger:     logger,
	}
}

// ScheduleJob submits job for immediate execution.
func (s *Service) ScheduleJob(ctx context.Context, job *domain.Job) error {
	return s.schedule(ctx, job, Immediate())
}

// ScheduleJobAt submits job to fire at the given time.
func (s *Service) ScheduleJobAt(ctx context.Context, job *domain.Job, at time.Time) error {
	return s.schedule(ctx, job, At(at))
}

func (s *Service) schedule(ctx context.Context, job *domain.Job, trigger Trigger) error {
	if !s.types.IsValidJobType(job.JobType) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownJobType, job.JobType)
	}

	key := Key(job.JobType, job.ID)

	exists, err := s.capability.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		s.logger.Debug("Job already scheduled, skipping",
			slog.String("job_id", job.ID),
			slog.String("key", key),
		)
		return nil
	}

	payload := Payload{JobID: job.ID, JobType: job.JobType}
	if err := s.capability.Submit(ctx, key, payload, trigger); err != nil {
		return err
	}

	telemetry.JobsScheduled.Inc()
	s.logger.Info("Job scheduled",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.Time("fire_at", trigger.FireAt),
	)

	return nil
}
