package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/job-orchestrator/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobRowColumns = []string{"job_id", "job_type", "status", "error_message", "scheduled_at", "created_at", "updated_at", "completed_at"}

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := postgresql.NewClientFromDB(sqlx.NewDb(db, "postgres"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewStorage(client), mock
}

func newJob() *domain.Job {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Job{
		ID:          "6f1c2b8e-0000-4000-8000-000000000001",
		JobType:     "MarkAllTasksDone",
		Status:      domain.JobStatusQueued,
		ScheduledAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestStorage_CreateJob(t *testing.T) {
	tests := []struct {
		name     string
		taskIDs  []string
		attached int64
		wantErr  error
	}{
		{name: "no tasks", taskIDs: nil},
		{name: "all tasks attached", taskIDs: []string{"t1", "t2"}, attached: 2},
		{name: "task already owned", taskIDs: []string{"t1", "t2"}, attached: 1, wantErr: ErrTaskNotAttachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)

			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(0, 1))
			if len(tt.taskIDs) > 0 {
				mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET job_id = $1")).
					WithArgs(newJob().ID, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, tt.attached))
			}
			if tt.wantErr != nil {
				mock.ExpectRollback()
			} else {
				mock.ExpectCommit()
			}

			err := s.CreateJob(context.Background(), newJob(), tt.taskIDs)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_GetJob(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		s, mock := newMockStorage(t)
		job := newJob()
		mock.ExpectQuery("FROM jobs").WithArgs(job.ID).WillReturnRows(
			sqlmock.NewRows(jobRowColumns).
				AddRow(job.ID, job.JobType, job.Status, nil, job.ScheduledAt, job.CreatedAt, job.UpdatedAt, nil),
		)

		got, err := s.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.JobType, got.JobType)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery("FROM jobs").WillReturnRows(sqlmock.NewRows(jobRowColumns))

		_, err := s.GetJob(context.Background(), "missing")
		require.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("query error", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery("FROM jobs").WillReturnError(errors.New("connection reset"))

		_, err := s.GetJob(context.Background(), "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrJobNotFound)
	})
}

func TestStorage_ListJobs_BuildsFilters(t *testing.T) {
	s, mock := newMockStorage(t)
	cursor := &JobCursor{CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), JobID: "j9"}

	mock.ExpectQuery(regexp.QuoteMeta("AND job_type = $1 AND status = $2 AND (created_at, job_id) < ($3, $4) ORDER BY created_at DESC, job_id DESC LIMIT $5")).
		WithArgs("GenerateTaskReport", domain.JobStatusCompleted, cursor.CreatedAt, cursor.JobID, 11).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	jobs, err := s.ListJobs(context.Background(), JobFilter{
		JobType:  "GenerateTaskReport",
		Status:   domain.JobStatusCompleted,
		PageSize: 10,
		Cursor:   cursor,
	})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_GetReportForDownload(t *testing.T) {
	columns := []string{"report_id", "job_id", "file_name", "content", "content_type", "status", "created_at"}

	t.Run("marks downloaded", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery("UPDATE reports SET status").
			WithArgs("j1", domain.ReportStatusDownloaded).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("r1", "j1", "task-report.txt", "Total Tasks: 0", "text/plain", domain.ReportStatusDownloaded, time.Now()))

		report, err := s.GetReportForDownload(context.Background(), "j1")
		require.NoError(t, err)
		assert.Equal(t, domain.ReportStatusDownloaded, report.Status)
		assert.Equal(t, "r1", report.ID)
	})

	t.Run("no report", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectQuery("UPDATE reports SET status").WillReturnRows(sqlmock.NewRows(columns))

		_, err := s.GetReportForDownload(context.Background(), "j1")
		require.ErrorIs(t, err, domain.ErrReportNotFound)
	})
}
