package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/job-orchestrator/internal/api/storage"
	"github.com/cuongbtq/job-orchestrator/internal/worker/cleanup"
	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
)

// JobStore is the persistence the handlers need
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job, taskIDs []string) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	GetReportForDownload(ctx context.Context, jobID string) (*domain.Report, error)
}

// JobScheduler submits a job for execution
type JobScheduler interface {
	ScheduleJob(ctx context.Context, job *domain.Job) error
}

// JobTypes validates and lists job type names
type JobTypes interface {
	IsValidJobType(name string) bool
	GetAllJobTypes() []string
}

// Cleaner removes finished jobs
type Cleaner interface {
	CleanupCompletedJob(ctx context.Context, jobID string) error
	CleanupAllCompletedJobs(ctx context.Context) (cleanup.SweepResult, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Storage   JobStore
	Scheduler JobScheduler
	JobTypes  JobTypes
	Cleanup   Cleaner
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	storage   JobStore
	scheduler JobScheduler
	jobTypes  JobTypes
	cleanup   Cleaner
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		storage:   deps.Storage,
		scheduler: deps.Scheduler,
		jobTypes:  deps.JobTypes,
		cleanup:   deps.Cleanup,
	}
}
