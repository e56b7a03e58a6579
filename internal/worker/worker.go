// Package worker hosts the orchestrator: it polls due triggers, runs jobs on
// a bounded pool, recovers pending jobs on startup and sweeps finished jobs.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/worker/cleanup"
	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/job-orchestrator/internal/worker/scheduling"
)

const defaultRearmDelay = 5 * time.Second

// TriggerSource hands out due jobs and can re-arm a registered job
type TriggerSource interface {
	Acquire(ctx context.Context, now time.Time) (scheduling.Payload, bool, error)
	Rearm(ctx context.Context, key string, at time.Time) (bool, error)
}

// Executor runs one attempt of a job
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// JobScheduler submits a job for execution
type JobScheduler interface {
	ScheduleJob(ctx context.Context, job *domain.Job) error
}

// JobLister finds jobs by status
type JobLister interface {
	ListJobsByStatus(ctx context.Context, status string) ([]domain.Job, error)
}

// Sweeper removes finished jobs in bulk
type Sweeper interface {
	CleanupAllCompletedJobs(ctx context.Context) (cleanup.SweepResult, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	WorkerID      string
	Source        TriggerSource
	Executor      Executor
	Scheduler     JobScheduler
	Jobs          JobLister
	Sweeper       Sweeper
	Startup       *StartupState
	Concurrency   int
	PollInterval  time.Duration
	JobTimeout    time.Duration
	SweepInterval time.Duration
	// RearmDelay is how long a job whose execution errored before it could be
	// loaded waits before its trigger fires again
	RearmDelay time.Duration
}

// Worker represents the background job worker
type Worker struct {
	logger        *slog.Logger
	workerID      string
	source        TriggerSource
	executor      Executor
	scheduler     JobScheduler
	jobs          JobLister
	sweeper       Sweeper
	startup       *StartupState
	concurrency   int
	pollInterval  time.Duration
	jobTimeout    time.Duration
	sweepInterval time.Duration
	rearmDelay    time.Duration
	jobsChan      chan scheduling.Payload
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	rearmDelay := cfg.RearmDelay
	if rearmDelay <= 0 {
		rearmDelay = defaultRearmDelay
	}
	startup := cfg.Startup
	if startup == nil {
		startup = NewStartupState()
	}

	return &Worker{
		logger:        cfg.Logger,
		workerID:      cfg.WorkerID,
		source:        cfg.Source,
		executor:      cfg.Executor,
		scheduler:     cfg.Scheduler,
		jobs:          cfg.Jobs,
		sweeper:       cfg.Sweeper,
		startup:       startup,
		concurrency:   concurrency,
		pollInterval:  pollInterval,
		jobTimeout:    cfg.JobTimeout,
		sweepInterval: cfg.SweepInterval,
		rearmDelay:    rearmDelay,
		jobsChan:      make(chan scheduling.Payload),
		stopChan:      make(chan struct{}),
	}
}

// Start recovers pending jobs, then polls and processes jobs until ctx is
// canceled or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	if w.startup.begin() {
		w.recoverPendingJobs(ctx)
	}

	w.spawnWorkerPool(ctx)

	if w.sweeper != nil && w.sweepInterval > 0 {
		w.wg.Add(1)
		go w.runSweeper(ctx)
	}

	w.pollTriggers(ctx)

	w.logger.Info("Worker poller stopped, waiting for running jobs")
	close(w.jobsChan)
	w.wg.Wait()

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
}
