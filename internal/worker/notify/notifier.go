// Package notify broadcasts job lifecycle events to observers over RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Event names
const (
	EventJobStatus       = "job.status"
	EventReportGenerated = "job.report_generated"
)

const contentTypeJSON = "application/json"

// Publisher delivers a message body. *rabbitmq.Client satisfies it.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// StatusEvent is published on every job status change
type StatusEvent struct {
	Event        string    `json:"event"`
	JobID        string    `json:"job_id"`
	JobType      string    `json:"job_type"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ReportEvent is published when a report has been generated
type ReportEvent struct {
	Event     string    `json:"event"`
	JobID     string    `json:"job_id"`
	ReportID  string    `json:"report_id"`
	FileName  string    `json:"file_name"`
	Timestamp time.Time `json:"timestamp"`
}

// RabbitNotifier serializes events as JSON and publishes them
type RabbitNotifier struct {
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewRabbitNotifier creates a RabbitNotifier
func NewRabbitNotifier(publisher Publisher, logger *slog.Logger) *RabbitNotifier {
	return &RabbitNotifier{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// NotifyStatus publishes a job.status event
func (n *RabbitNotifier) NotifyStatus(ctx context.Context, jobID, jobType, status, errorMessage string) error {
	return n.publish(ctx, StatusEvent{
		Event:        EventJobStatus,
		JobID:        jobID,
		JobType:      jobType,
		Status:       status,
		ErrorMessage: errorMessage,
		Timestamp:    n.now().UTC(),
	})
}

// NotifyReportGenerated publishes a job.report_generated event
func (n *RabbitNotifier) NotifyReportGenerated(ctx context.Context, jobID, reportID, fileName string) error {
	return n.publish(ctx, ReportEvent{
		Event:     EventReportGenerated,
		JobID:     jobID,
		ReportID:  reportID,
		FileName:  fileName,
		Timestamp: n.now().UTC(),
	})
}

func (n *RabbitNotifier) publish(ctx context.Context, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := n.publisher.PublishWithRetry(ctx, body, contentTypeJSON); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// LogNotifier only logs events. Used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyStatus(_ context.Context, jobID, jobType, status, errorMessage string) error {
	n.logger.Info("Job status changed",
		slog.String("job_id", jobID),
		slog.String("job_type", jobType),
		slog.String("status", status),
		slog.String("error_message", errorMessage),
	)
	return nil
}

func (n *LogNotifier) NotifyReportGenerated(_ context.Context, jobID, reportID, fileName string) error {
	n.logger.Info("Report generated",
		slog.String("job_id", jobID),
		slog.String("report_id", reportID),
		slog.String("file_name", fileName),
	)
	return nil
}
