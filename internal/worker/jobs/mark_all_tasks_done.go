package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
)

// MarkAllTasksDone completes every task owned by the job.
type MarkAllTasksDone struct{}

func (b *MarkAllTasksDone) ExecuteCore(ctx context.Context, scope *Scope, job *domain.Job) (Result, error) {
	tasks, err := scope.Tasks.ListTasksByJob(ctx, job.ID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load tasks: %w", err)
	}

	updated := 0
	for _, task := range tasks {
		if task.Status == domain.TaskStatusCompleted {
			continue
		}

		// cancellation is honored between tasks only
		if err := ctx.Err(); err != nil {
			return Result{AffectedCount: updated}, fmt.Errorf("job execution canceled: %w", err)
		}

		if err := scope.Tasks.UpdateTaskStatus(ctx, task.ID, domain.TaskStatusCompleted); err != nil {
			return Result{AffectedCount: updated}, fmt.Errorf("failed to complete task %s: %w", task.ID, err)
		}
		updated++
	}

	scope.Logger.Info("Marked tasks as done",
		slog.String("job_id", job.ID),
		slog.Int("total_tasks", len(tasks)),
		slog.Int("updated_tasks", updated),
	)

	return Result{Success: true, AffectedCount: updated}, nil
}
