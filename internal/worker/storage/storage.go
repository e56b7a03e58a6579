package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

const jobColumns = `job_id, job_type, status, error_message, scheduled_at, created_at, updated_at, completed_at`

// GetJob retrieves a job from the database by its ID
func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ListJobsByStatus returns every job currently in the given status
func (s *Storage) ListJobsByStatus(ctx context.Context, status string) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY created_at ASC`

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, status); err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}

	return jobs, nil
}

// UpdateJobStatus moves a job to a new status. Only the moves allowed by
// domain.CanTransition are applied, so a status never regresses.
func (s *Storage) UpdateJobStatus(ctx context.Context, jobID, status, errorMsg string) error {
	from := domain.TransitionSources(status)
	if len(from) == 0 {
		return fmt.Errorf("%w: no job can move to %s", domain.ErrInvalidTransition, status)
	}

	query := `
		UPDATE jobs
		SET status = $1::text,
			error_message = NULLIF($2, ''),
			completed_at = CASE
				WHEN $1::text IN ($3::text, $4::text) THEN NOW()
				ELSE NULL
			END,
			updated_at = NOW()
		WHERE job_id = $5
		  AND status = ANY($6)
	`

	result, err := s.db.ExecContext(ctx, query,
		status, errorMsg, domain.JobStatusCompleted, domain.JobStatusFailed, jobID, pq.Array(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		job, err := s.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: job %s can not move from %s to %s", domain.ErrInvalidTransition, jobID, job.Status, status)
	}

	s.logger.Debug("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	return nil
}

// DeleteJob removes a job row; tasks are detached and the report and retry
// record are removed by the schema's cascade rules
func (s *Storage) DeleteJob(ctx context.Context, jobID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrJobNotFound
	}

	return nil
}

// ListTasksByJob returns the tasks owned by a job
func (s *Storage) ListTasksByJob(ctx context.Context, jobID string) ([]domain.Task, error) {
	query := `
		SELECT task_id, job_id, title, description, status, created_at
		FROM tasks
		WHERE job_id = $1
		ORDER BY created_at ASC
	`

	var tasks []domain.Task
	if err := s.db.SelectContext(ctx, &tasks, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTaskStatus sets the status of a single task
func (s *Storage) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = $1 WHERE task_id = $2`, status, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// CompleteTasksByJob marks every non-completed task owned by the job as COMPLETED
// and returns how many rows changed
func (s *Storage) CompleteTasksByJob(ctx context.Context, jobID string) (int, error) {
	query := `UPDATE tasks SET status = $1 WHERE job_id = $2 AND status <> $1`

	result, err := s.db.ExecContext(ctx, query, domain.TaskStatusCompleted, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to complete tasks: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// GetRetryRecord returns the retry record of a job
func (s *Storage) GetRetryRecord(ctx context.Context, jobID string) (*domain.RetryRecord, error) {
	query := `
		SELECT retry_id, job_id, retry_count, max_retries, next_retry_at, last_error_message, created_at
		FROM job_retries
		WHERE job_id = $1
	`

	var record domain.RetryRecord
	if err := s.db.GetContext(ctx, &record, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRetryRecordNotFound
		}
		return nil, fmt.Errorf("failed to get retry record: %w", err)
	}

	return &record, nil
}

// CreateRetryRecord inserts the first retry record of a job
func (s *Storage) CreateRetryRecord(ctx context.Context, record *domain.RetryRecord) error {
	query := `
		INSERT INTO job_retries (
			retry_id, job_id, retry_count, max_retries,
			next_retry_at, last_error_message, created_at
		) VALUES (
			:retry_id, :job_id, :retry_count, :max_retries,
			:next_retry_at, :last_error_message, :created_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to create retry record: %w", err)
	}
	return nil
}

// UpdateRetryRecord persists the count, schedule and last error of a retry record
func (s *Storage) UpdateRetryRecord(ctx context.Context, record *domain.RetryRecord) error {
	query := `
		UPDATE job_retries
		SET retry_count = :retry_count,
			next_retry_at = :next_retry_at,
			last_error_message = :last_error_message
		WHERE job_id = :job_id
	`

	if _, err := s.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to update retry record: %w", err)
	}
	return nil
}

// DeleteRetryRecord removes the retry record of a job; a missing record is not an error
func (s *Storage) DeleteRetryRecord(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_retries WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete retry record: %w", err)
	}
	return nil
}

// CreateReport stores the report of a job. A job has at most one report, so
// a report generated again by a later attempt replaces the earlier one.
func (s *Storage) CreateReport(ctx context.Context, report *domain.Report) error {
	query := `
		INSERT INTO reports (
			report_id, job_id, file_name, content, content_type, status, created_at
		) VALUES (
			:report_id, :job_id, :file_name, :content, :content_type, :status, :created_at
		)
		ON CONFLICT (job_id) DO UPDATE SET
			report_id = EXCLUDED.report_id,
			file_name = EXCLUDED.file_name,
			content = EXCLUDED.content,
			content_type = EXCLUDED.content_type,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at
	`

	if _, err := s.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// GetReportByJob returns the report generated for a job
func (s *Storage) GetReportByJob(ctx context.Context, jobID string) (*domain.Report, error) {
	query := `
		SELECT report_id, job_id, file_name, content, content_type, status, created_at
		FROM reports
		WHERE job_id = $1
	`

	var report domain.Report
	if err := s.db.GetContext(ctx, &report, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return &report, nil
}
