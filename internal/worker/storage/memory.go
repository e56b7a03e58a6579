package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
)

// MemoryStore is an in-process implementation of the worker storage used for
// local runs and tests. Values are copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]domain.Job
	tasks   map[string]domain.Task
	retries map[string]domain.RetryRecord
	reports map[string]domain.Report
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]domain.Job),
		tasks:   make(map[string]domain.Task),
		retries: make(map[string]domain.RetryRecord),
		reports: make(map[string]domain.Report),
	}
}

// PutJob inserts or replaces a job
func (m *MemoryStore) PutJob(job domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
}

// PutTask inserts or replaces a task
func (m *MemoryStore) PutTask(task domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
}

func (m *MemoryStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &job, nil
}

func (m *MemoryStore) ListJobsByStatus(_ context.Context, status string) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []domain.Job
	for _, job := range m.jobs {
		if job.Status == status {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (m *MemoryStore) UpdateJobStatus(_ context.Context, jobID, status, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if !domain.CanTransition(job.Status, status) {
		return fmt.Errorf("%w: job %s can not move from %s to %s", domain.ErrInvalidTransition, jobID, job.Status, status)
	}

	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now
	job.ErrorMessage = nil
	if errorMsg != "" {
		job.ErrorMessage = &errorMsg
	}
	job.CompletedAt = nil
	if domain.IsTerminalJobStatus(status) {
		job.CompletedAt = &now
	}
	m.jobs[jobID] = job
	return nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[jobID]; !ok {
		return domain.ErrJobNotFound
	}
	delete(m.jobs, jobID)
	delete(m.retries, jobID)
	delete(m.reports, jobID)
	for id, task := range m.tasks {
		if task.JobID != nil && *task.JobID == jobID {
			task.JobID = nil
			m.tasks[id] = task
		}
	}
	return nil
}

func (m *MemoryStore) ListTasksByJob(_ context.Context, jobID string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tasks []domain.Task
	for _, task := range m.tasks {
		if task.JobID != nil && *task.JobID == jobID {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (m *MemoryStore) UpdateTaskStatus(_ context.Context, taskID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil
	}
	task.Status = status
	m.tasks[taskID] = task
	return nil
}

func (m *MemoryStore) CompleteTasksByJob(_ context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, task := range m.tasks {
		if task.JobID == nil || *task.JobID != jobID || task.Status == domain.TaskStatusCompleted {
			continue
		}
		task.Status = domain.TaskStatusCompleted
		m.tasks[id] = task
		count++
	}
	return count, nil
}

func (m *MemoryStore) GetRetryRecord(_ context.Context, jobID string) (*domain.RetryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.retries[jobID]
	if !ok {
		return nil, domain.ErrRetryRecordNotFound
	}
	return &record, nil
}

func (m *MemoryStore) CreateRetryRecord(_ context.Context, record *domain.RetryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[record.JobID] = *record
	return nil
}

func (m *MemoryStore) UpdateRetryRecord(_ context.Context, record *domain.RetryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[record.JobID] = *record
	return nil
}

func (m *MemoryStore) DeleteRetryRecord(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.retries, jobID)
	return nil
}

func (m *MemoryStore) CreateReport(_ context.Context, report *domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.JobID] = *report
	return nil
}

func (m *MemoryStore) GetReportByJob(_ context.Context, jobID string) (*domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report, ok := m.reports[jobID]
	if !ok {
		return nil, domain.ErrReportNotFound
	}
	return &report, nil
}
