// Package report persists generated job reports and optionally archives them.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/google/uuid"
)

// Store persists reports
type Store interface {
	CreateReport(ctx context.Context, report *domain.Report) error
}

// Archiver keeps a copy of report content outside the database
type Archiver interface {
	Archive(ctx context.Context, key string, content []byte, contentType string) (string, error)
}

// Service is the report generation collaborator used by job behaviors
type Service struct {
	store    Store
	archiver Archiver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a report Service. archiver may be nil.
func NewService(store Store, archiver Archiver, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		archiver: archiver,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateReport stores a GENERATED report for a job. Archive failures are
// logged and do not fail the call.
func (s *Service) CreateReport(ctx context.Context, jobID, fileName, content, contentType string) (*domain.Report, error) {
	report := &domain.Report{
		ID:          uuid.New().String(),
		JobID:       jobID,
		FileName:    fileName,
		Content:     content,
		ContentType: contentType,
		Status:      domain.ReportStatusGenerated,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}

	if s.archiver != nil {
		location, err := s.archiver.Archive(ctx, ArchiveKey(jobID, fileName), []byte(content), contentType)
		if err != nil {
			s.logger.Warn("Failed to archive report",
				slog.String("job_id", jobID),
				slog.String("report_id", report.ID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("Report archived",
				slog.String("job_id", jobID),
				slog.String("location", location),
			)
		}
	}

	return report, nil
}

// ArchiveKey is the object key of a report, relative to the archive prefix
func ArchiveKey(jobID, fileName string) string {
	return jobID + "/" + fileName
}
