// Package retry decides whether a failed job runs again and keeps the
// per-job retry bookkeeping.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/telemetry"
	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/google/uuid"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 5 * time.Second
	DefaultMaxDelay   = 5 * time.Minute
)

// Store persists retry records
type Store interface {
	GetRetryRecord(ctx context.Context, jobID string) (*domain.RetryRecord, error)
	CreateRetryRecord(ctx context.Context, record *domain.RetryRecord) error
	UpdateRetryRecord(ctx context.Context, record *domain.RetryRecord) error
	DeleteRetryRecord(ctx context.Context, jobID string) error
}

// Scheduler re-submits a job for execution
type Scheduler interface {
	ScheduleJob(ctx context.Context, job *domain.Job) error
	ScheduleJobAt(ctx context.Context, job *domain.Job, at time.Time) error
}

// Config holds retry policy settings
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// HonorNextRetryAt delays the re-submission until NextRetryAt. When false
	// NextRetryAt is recorded but the job is re-submitted immediately.
	HonorNextRetryAt bool
}

// Service is the retry policy
type Service struct {
	store     Store
	scheduler Scheduler
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	jitter    func(n int64) int64
}

// NewService creates a retry Service, filling zero config values with defaults
func NewService(store Store, scheduler Scheduler, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}

	return &Service{
		store:     store,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		jitter:    rand.Int64N,
	}
}

// ShouldRetryOnError classifies an error message. Validation failures and
// missing resources never succeed on a later attempt; everything else,
// including an empty message, is treated as transient.
func ShouldRetryOnError(message string) bool {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "validation") || strings.Contains(lower, "not found") {
		return false
	}
	return true
}

// GetRetryInfo returns the retry record of a job, or nil when there is none.
func (s *Service) GetRetryInfo(ctx context.Context, jobID string) (*domain.RetryRecord, error) {
	record, err := s.store.GetRetryRecord(ctx, jobID)
	if errors.Is(err, domain.ErrRetryRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ShouldRetryJob reports whether a retry record exists with budget left.
// The check is strict: retry_count < max_retries.
func (s *Service) ShouldRetryJob(ctx context.Context, jobID string) (bool, error) {
	record, err := s.GetRetryInfo(ctx, jobID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	return record.RetryCount < record.MaxRetries, nil
}

// ScheduleRetry records the failure and re-submits the job. The first call
// creates the record with retry_count 0; later calls increment it.
func (s *Service) ScheduleRetry(ctx context.Context, job *domain.Job, errorMessage string) error {
	now := s.now().UTC()

	record, err := s.GetRetryInfo(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to load retry record: %w", err)
	}

	if record == nil {
		record = &domain.RetryRecord{
			ID:               uuid.New().String(),
			JobID:            job.ID,
			RetryCount:       0,
			MaxRetries:       s.cfg.MaxRetries,
			LastErrorMessage: errorMessage,
			CreatedAt:        now,
		}
		record.NextRetryAt = now.Add(s.delay(record.RetryCount))
		if err := s.store.CreateRetryRecord(ctx, record); err != nil {
			return fmt.Errorf("failed to create retry record: %w", err)
		}
	} else {
		record.RetryCount++
		record.LastErrorMessage = errorMessage
		record.NextRetryAt = now.Add(s.delay(record.RetryCount))
		if err := s.store.UpdateRetryRecord(ctx, record); err != nil {
			return fmt.Errorf("failed to update retry record: %w", err)
		}
	}

	if s.cfg.HonorNextRetryAt {
		err = s.scheduler.ScheduleJobAt(ctx, job, record.NextRetryAt)
	} else {
		err = s.scheduler.ScheduleJob(ctx, job)
	}
	if err != nil {
		return fmt.Errorf("failed to resubmit job: %w", err)
	}

	telemetry.JobsRetried.Inc()
	s.logger.Warn("Job retry scheduled",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.Int("retry_count", record.RetryCount),
		slog.Int("max_retries", record.MaxRetries),
		slog.Time("next_retry_at", record.NextRetryAt),
		slog.String("error", errorMessage),
	)

	return nil
}

// RemoveRetryInfo deletes the retry record of a job. Safe when none exists.
func (s *Service) RemoveRetryInfo(ctx context.Context, jobID string) error {
	return s.store.DeleteRetryRecord(ctx, jobID)
}

// delay returns an exponential delay for retryCount with equal jitter: half
// the window is fixed and half is random, so jobs failing together spread out.
func (s *Service) delay(retryCount int) time.Duration {
	window := float64(s.cfg.BaseDelay) * math.Pow(2, float64(retryCount))
	if window > float64(s.cfg.MaxDelay) {
		window = float64(s.cfg.MaxDelay)
	}

	half := int64(window / 2)
	if half <= 0 {
		return time.Duration(window)
	}
	return time.Duration(half + s.jitter(half))
}
