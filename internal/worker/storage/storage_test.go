package storage

import (
	"context"
	"database/sql/driver"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStorage(sqlx.NewDb(db, "postgres"), logger), mock
}

var jobRowColumns = []string{"job_id", "job_type", "status", "error_message", "scheduled_at", "created_at", "updated_at", "completed_at"}

func TestStorage_GetJob(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE job_id = $1")).
			WithArgs("job-1").
			WillReturnRows(sqlmock.NewRows(jobRowColumns).
				AddRow("job-1", "MarkAllTasksDone", domain.JobStatusQueued, nil, nil, created, created, nil))

		job, err := s.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", job.ID)
		assert.Equal(t, "MarkAllTasksDone", job.JobType)
		assert.Equal(t, domain.JobStatusQueued, job.Status)
		assert.Nil(t, job.ErrorMessage)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE job_id = $1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(jobRowColumns))

		job, err := s.GetJob(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrJobNotFound)
		assert.Nil(t, job)
	})
}

// sourceStatuses matches the pq array of allowed source statuses
type sourceStatuses string

func (s sourceStatuses) Match(v driver.Value) bool {
	got, ok := v.(string)
	return ok && got == string(s)
}

func TestStorage_UpdateJobStatus(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("updates from allowed source statuses", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta("AND status = ANY($6)")).
			WithArgs(domain.JobStatusRunning, "", domain.JobStatusCompleted, domain.JobStatusFailed, "job-1", sourceStatuses(`{"QUEUED","RUNNING"}`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.UpdateJobStatus(ctx, "job-1", domain.JobStatusRunning, ""))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	tests := []struct {
		name    string
		current string
		target  string
		sources string
	}{
		{name: "terminal job is not regressed", current: domain.JobStatusCompleted, target: domain.JobStatusRunning, sources: `{"QUEUED","RUNNING"}`},
		{name: "queued job can not fail directly", current: domain.JobStatusQueued, target: domain.JobStatusFailed, sources: `{"RUNNING"}`},
		{name: "queued job can not complete directly", current: domain.JobStatusQueued, target: domain.JobStatusCompleted, sources: `{"RUNNING"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)
			mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
				WithArgs(tt.target, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "job-1", sourceStatuses(tt.sources)).
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE job_id = $1")).
				WithArgs("job-1").
				WillReturnRows(sqlmock.NewRows(jobRowColumns).
					AddRow("job-1", "MarkAllTasksDone", tt.current, nil, nil, created, created, nil))

			err := s.UpdateJobStatus(ctx, "job-1", tt.target, "")
			require.ErrorIs(t, err, domain.ErrInvalidTransition)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("nothing moves back to queued", func(t *testing.T) {
		s, mock := newMockStorage(t)

		err := s.UpdateJobStatus(ctx, "job-1", domain.JobStatusQueued, "")
		require.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing job", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE job_id = $1")).
			WillReturnRows(sqlmock.NewRows(jobRowColumns))

		err := s.UpdateJobStatus(ctx, "job-1", domain.JobStatusRunning, "")
		require.ErrorIs(t, err, domain.ErrJobNotFound)
	})
}

func TestStorage_CreateReport_ReplacesReportOfSameJob(t *testing.T) {
	s, mock := newMockStorage(t)
	report := &domain.Report{
		ID:          "report-2",
		JobID:       "job-1",
		FileName:    "task-report-job-1.txt",
		Content:     "Total Tasks: 0",
		ContentType: "text/plain",
		Status:      domain.ReportStatusGenerated,
		CreatedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (job_id) DO UPDATE SET")).
		WithArgs(report.ID, report.JobID, report.FileName, report.Content, report.ContentType, report.Status, report.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.CreateReport(context.Background(), report))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_CompleteTasksByJob(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET status = $1 WHERE job_id = $2 AND status <> $1")).
		WithArgs(domain.TaskStatusCompleted, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := s.CompleteTasksByJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_GetRetryRecord_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM job_retries")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"retry_id", "job_id", "retry_count", "max_retries", "next_retry_at", "last_error_message", "created_at"}))

	record, err := s.GetRetryRecord(context.Background(), "job-1")
	require.ErrorIs(t, err, domain.ErrRetryRecordNotFound)
	assert.Nil(t, record)
}

func TestStorage_DeleteJob_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM jobs WHERE job_id = $1")).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, s.DeleteJob(context.Background(), "job-1"), domain.ErrJobNotFound)
}

func TestMemoryStore_StatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.PutJob(domain.Job{ID: "job-1", JobType: "MarkAllTasksDone", Status: domain.JobStatusQueued})

	require.NoError(t, m.UpdateJobStatus(ctx, "job-1", domain.JobStatusRunning, ""))
	require.NoError(t, m.UpdateJobStatus(ctx, "job-1", domain.JobStatusCompleted, ""))
	require.ErrorIs(t, m.UpdateJobStatus(ctx, "job-1", domain.JobStatusRunning, ""), domain.ErrInvalidTransition)

	job, err := m.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
}

func TestMemoryStore_RejectsDisallowedTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		current string
		target  string
	}{
		{name: "queued to failed", current: domain.JobStatusQueued, target: domain.JobStatusFailed},
		{name: "queued to completed", current: domain.JobStatusQueued, target: domain.JobStatusCompleted},
		{name: "running to queued", current: domain.JobStatusRunning, target: domain.JobStatusQueued},
		{name: "failed to running", current: domain.JobStatusFailed, target: domain.JobStatusRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemoryStore()
			m.PutJob(domain.Job{ID: "job-1", JobType: "MarkAllTasksDone", Status: tt.current})

			require.ErrorIs(t, m.UpdateJobStatus(ctx, "job-1", tt.target, ""), domain.ErrInvalidTransition)

			job, err := m.GetJob(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, tt.current, job.Status)
		})
	}
}

func TestMemoryStore_CreateReport_OneReportPerJob(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.CreateReport(ctx, &domain.Report{ID: "report-1", JobID: "job-1", Content: "first"}))
	require.NoError(t, m.CreateReport(ctx, &domain.Report{ID: "report-2", JobID: "job-1", Content: "second"}))

	report, err := m.GetReportByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "report-2", report.ID)
	assert.Equal(t, "second", report.Content)
}
