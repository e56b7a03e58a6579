package scheduling

import (
	"context"
	"time"
)

// Payload is the unit-of-work descriptor handed back when a trigger fires.
type Payload struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
}

// Trigger describes when a submitted unit of work fires.
type Trigger struct {
	FireAt time.Time
}

// Immediate returns a trigger that fires as soon as a worker polls.
func Immediate() Trigger {
	return Trigger{FireAt: time.Now()}
}

// At returns a trigger that fires at t.
func At(t time.Time) Trigger {
	return Trigger{FireAt: t}
}

// Capability is the scheduling engine the core submits work to.
type Capability interface {
	Exists(ctx context.Context, key string) (bool, error)
	Submit(ctx context.Context, key string, payload Payload, trigger Trigger) error
	Remove(ctx context.Context, key string) (bool, error)
}

// Key builds the scheduler key of a job.
func Key(jobType, jobID string) string {
	return jobType + "-" + jobID
}
