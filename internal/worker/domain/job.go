package domain

import "time"

// Job represents a background job tracked through its status lifecycle
type Job struct {
	ID           string     `db:"job_id"`
	JobType      string     `db:"job_type"`
	Status       string     `db:"status"`
	ErrorMessage *string    `db:"error_message"`
	ScheduledAt  *time.Time `db:"scheduled_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}

// Task is a work item that a job may act upon in bulk
type Task struct {
	ID          string    `db:"task_id"`
	JobID       *string   `db:"job_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

// RetryRecord is the durable bookkeeping of a failing job
type RetryRecord struct {
	ID               string    `db:"retry_id"`
	JobID            string    `db:"job_id"`
	RetryCount       int       `db:"retry_count"`
	MaxRetries       int       `db:"max_retries"`
	NextRetryAt      time.Time `db:"next_retry_at"`
	LastErrorMessage string    `db:"last_error_message"`
	CreatedAt        time.Time `db:"created_at"`
}

// Report is the output of a report-producing job, one per job
type Report struct {
	ID          string    `db:"report_id"`
	JobID       string    `db:"job_id"`
	FileName    string    `db:"file_name"`
	Content     string    `db:"content"`
	ContentType string    `db:"content_type"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}
