package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownJobType is returned when a job type has no registered behavior
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrRetryRecordNotFound is returned when a job has no retry bookkeeping yet
	ErrRetryRecordNotFound = errors.New("retry record not found")

	// ErrReportNotFound is returned when a job has no generated report
	ErrReportNotFound = errors.New("report not found")

	// ErrInvalidTransition is returned when a status update would regress a job
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// TerminalError is returned by the orchestrator once a job has been marked FAILED,
// either because the failure is not retryable or the retry budget is spent.
type TerminalError struct {
	JobID   string
	JobType string
	Message string
	Err     error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("job %s (%s) failed: %s", e.JobID, e.JobType, e.Message)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// NewTerminalError creates a terminal failure for a job. When cause is nil an
// error is synthesized from the message.
func NewTerminalError(job *Job, message string, cause error) error {
	if cause == nil {
		cause = errors.New(message)
	}
	return &TerminalError{
		JobID:   job.ID,
		JobType: job.JobType,
		Message: message,
		Err:     cause,
	}
}
