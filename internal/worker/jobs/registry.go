// Package jobs maps job type names to the unit of work they run.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
)

// Built-in job type names
const (
	TypeMarkAllTasksDone   = "MarkAllTasksDone"
	TypeGenerateTaskReport = "GenerateTaskReport"
)

// Result is what a behavior reports back to the orchestrator.
type Result struct {
	Success       bool
	AffectedCount int
	ErrorMessage  string
}

// TaskStore is the task access a behavior gets.
type TaskStore interface {
	ListTasksByJob(ctx context.Context, jobID string) ([]domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID, status string) error
}

// ReportCreator persists a generated report.
type ReportCreator interface {
	CreateReport(ctx context.Context, jobID, fileName, content, contentType string) (*domain.Report, error)
}

// ReportNotifier announces a generated report to observers.
type ReportNotifier interface {
	NotifyReportGenerated(ctx context.Context, jobID, reportID, fileName string) error
}

// Scope carries the collaborators of a single execution. The orchestrator
// builds a fresh one per run.
type Scope struct {
	Tasks    TaskStore
	Reports  ReportCreator
	Notifier ReportNotifier
	Logger   *slog.Logger
}

// Behavior is the unit of work of a job type. A returned error is handled the
// same way as a Result with Success=false.
type Behavior interface {
	ExecuteCore(ctx context.Context, scope *Scope, job *domain.Job) (Result, error)
}

// BehaviorFunc adapts a function to Behavior.
type BehaviorFunc func(ctx context.Context, scope *Scope, job *domain.Job) (Result, error)

func (f BehaviorFunc) ExecuteCore(ctx context.Context, scope *Scope, job *domain.Job) (Result, error) {
	return f(ctx, scope, job)
}

// Registry is a static mapping of job type name to behavior. It is read-only
// after construction and therefore safe for concurrent use.
type Registry struct {
	behaviors map[string]Behavior
}

// NewRegistry creates a registry over the given behaviors.
func NewRegistry(behaviors map[string]Behavior) *Registry {
	copied := make(map[string]Behavior, len(behaviors))
	for name, b := range behaviors {
		copied[name] = b
	}
	return &Registry{behaviors: copied}
}

// NewDefaultRegistry returns a registry with the built-in job types.
func NewDefaultRegistry() *Registry {
	return NewRegistry(map[string]Behavior{
		TypeMarkAllTasksDone:   &MarkAllTasksDone{},
		TypeGenerateTaskReport: &GenerateTaskReport{},
	})
}

// IsValidJobType reports whether name has a registered behavior.
func (r *Registry) IsValidJobType(name string) bool {
	_, ok := r.behaviors[name]
	return ok
}

// GetJobType returns the behavior registered for name.
func (r *Registry) GetJobType(name string) (Behavior, error) {
	b, ok := r.behaviors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobType, name)
	}
	return b, nil
}

// GetAllJobTypes returns the registered names in sorted order.
func (r *Registry) GetAllJobTypes() []string {
	names := make([]string, 0, len(r.behaviors))
	for name := range r.behaviors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
