package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/job-orchestrator/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrTaskNotAttachable is returned when a task to attach does not exist or
// already belongs to another job
var ErrTaskNotAttachable = errors.New("task not found or already attached to a job")

type Storage struct {
	client *postgresql.Client
	db     *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		client: pg,
		db:     pg.GetDB(),
	}
}

// CreateJob inserts a job and attaches the given tasks to it in one transaction
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job, taskIDs []string) error {
	return s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO jobs (job_id, job_type, status, scheduled_at, created_at, updated_at)
			VALUES (:job_id, :job_type, :status, :scheduled_at, :created_at, :updated_at)
		`
		if _, err := tx.NamedExecContext(ctx, query, job); err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}

		if len(taskIDs) == 0 {
			return nil
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET job_id = $1 WHERE task_id = ANY($2) AND job_id IS NULL`,
			job.ID, pq.Array(taskIDs),
		)
		if err != nil {
			return fmt.Errorf("failed to attach tasks: %w", err)
		}

		attached, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to attach tasks: %w", err)
		}
		if int(attached) != len(taskIDs) {
			return ErrTaskNotAttachable
		}
		return nil
	})
}

func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	query := `
		SELECT job_id, job_type, status, error_message, scheduled_at,
			created_at, updated_at, completed_at
		FROM jobs
		WHERE job_id = $1
	`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	JobType  string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs, newest first, so the caller can
// tell whether another page exists
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `
		SELECT job_id, job_type, status, error_message, scheduled_at,
			created_at, updated_at, completed_at
		FROM jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// GetReportForDownload returns the latest report of a job and marks it
// DOWNLOADED
func (s *Storage) GetReportForDownload(ctx context.Context, jobID string) (*domain.Report, error) {
	var report domain.Report
	query := `
		UPDATE reports SET status = $2
		WHERE report_id = (
			SELECT report_id FROM reports WHERE job_id = $1
			ORDER BY created_at DESC LIMIT 1
		)
		RETURNING report_id, job_id, file_name, content, content_type, status, created_at
	`

	err := s.db.GetContext(ctx, &report, query, jobID, domain.ReportStatusDownloaded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return &report, nil
}
