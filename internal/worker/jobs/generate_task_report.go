package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
)

const reportContentType = "text/plain"

// GenerateTaskReport writes a plain-text summary of the job's tasks.
type GenerateTaskReport struct {
	// Now defaults to time.Now
	Now func() time.Time
}

func (b *GenerateTaskReport) ExecuteCore(ctx context.Context, scope *Scope, job *domain.Job) (Result, error) {
	tasks, err := scope.Tasks.ListTasksByJob(ctx, job.ID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load tasks: %w", err)
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	generatedAt := now().UTC()

	if len(tasks) == 0 {
		scope.Logger.Warn("No tasks found for report",
			slog.String("job_id", job.ID),
		)
	}

	content := buildTaskReport(job.ID, tasks, generatedAt)
	fileName := fmt.Sprintf("task-report-%s-%s.txt", job.ID, generatedAt.Format("20060102150405"))

	report, err := scope.Reports.CreateReport(ctx, job.ID, fileName, content, reportContentType)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create report: %w", err)
	}

	if scope.Notifier != nil {
		if err := scope.Notifier.NotifyReportGenerated(ctx, job.ID, report.ID, report.FileName); err != nil {
			scope.Logger.Warn("Failed to notify report generated",
				slog.String("job_id", job.ID),
				slog.String("report_id", report.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	scope.Logger.Info("Task report generated",
		slog.String("job_id", job.ID),
		slog.String("report_id", report.ID),
		slog.String("file_name", report.FileName),
		slog.Int("total_tasks", len(tasks)),
	)

	return Result{Success: true, AffectedCount: len(tasks)}, nil
}

func buildTaskReport(jobID string, tasks []domain.Task, generatedAt time.Time) string {
	counts := make(map[string]int)
	for _, task := range tasks {
		counts[task.Status]++
	}

	var sb strings.Builder
	sb.WriteString("Task Report\n")
	sb.WriteString("===========\n")
	fmt.Fprintf(&sb, "Job ID: %s\n", jobID)
	fmt.Fprintf(&sb, "Generated At: %s\n", generatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Total Tasks: %d\n", len(tasks))
	fmt.Fprintf(&sb, "Completed: %d\n", counts[domain.TaskStatusCompleted])
	fmt.Fprintf(&sb, "In Progress: %d\n", counts[domain.TaskStatusInProgress])
	fmt.Fprintf(&sb, "Pending: %d\n", counts[domain.TaskStatusPending])
	sb.WriteString("\n")

	if len(tasks) == 0 {
		sb.WriteString("No tasks found for this job.\n")
		return sb.String()
	}

	sb.WriteString("Tasks:\n")
	for _, task := range tasks {
		fmt.Fprintf(&sb, "- [%s] %s (%s)\n", task.Status, task.Title, task.ID)
		if task.Description != "" {
			fmt.Fprintf(&sb, "  %s\n", task.Description)
		}
	}

	return sb.String()
}
