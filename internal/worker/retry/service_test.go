package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/job-orchestrator/internal/worker/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingScheduler struct {
	mu  sync.Mutex
	now []string
	at  map[string]time.Time
	err error
}

func (r *recordingScheduler) ScheduleJob(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = append(r.now, job.ID)
	return r.err
}

func (r *recordingScheduler) ScheduleJobAt(_ context.Context, job *domain.Job, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.at == nil {
		r.at = make(map[string]time.Time)
	}
	r.at[job.ID] = at
	return r.err
}

func newTestService(cfg Config) (*Service, *storage.MemoryStore, *recordingScheduler) {
	store := storage.NewMemoryStore()
	sched := &recordingScheduler{}
	return NewService(store, sched, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))), store, sched
}

func TestShouldRetryOnError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{name: "validation", message: "Validation failed", want: false},
		{name: "not found", message: "Resource not found", want: false},
		{name: "upper case", message: "NOT FOUND: task 7", want: false},
		{name: "mixed case validation", message: "payload VaLiDaTiOn error", want: false},
		{name: "timeout", message: "Network timeout", want: true},
		{name: "empty", message: "", want: true},
		{name: "connection refused", message: "dial tcp: connection refused", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetryOnError(tt.message))
		})
	}
}

func TestNewService_Defaults(t *testing.T) {
	svc, _, _ := newTestService(Config{})
	assert.Equal(t, DefaultMaxRetries, svc.cfg.MaxRetries)
	assert.Equal(t, DefaultBaseDelay, svc.cfg.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, svc.cfg.MaxDelay)
}

func TestService_ScheduleRetry_CreatesThenIncrements(t *testing.T) {
	ctx := context.Background()
	svc, store, sched := newTestService(Config{MaxRetries: 3})
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	job := &domain.Job{ID: "job-1", JobType: "MarkAllTasksDone"}

	shouldRetry, err := svc.ShouldRetryJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, shouldRetry, "no record means no budget check can pass")

	require.NoError(t, svc.ScheduleRetry(ctx, job, "timeout 1"))
	record, err := store.GetRetryRecord(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, record.RetryCount)
	assert.Equal(t, 3, record.MaxRetries)
	assert.Equal(t, "timeout 1", record.LastErrorMessage)
	assert.True(t, record.NextRetryAt.After(fixed))
	assert.Equal(t, fixed, record.CreatedAt)

	require.NoError(t, svc.ScheduleRetry(ctx, job, "timeout 2"))
	record, err = store.GetRetryRecord(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, record.RetryCount)
	assert.Equal(t, "timeout 2", record.LastErrorMessage)

	assert.Equal(t, []string{"job-1", "job-1"}, sched.now)
}

func TestService_ShouldRetryJob_StrictLessThan(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(Config{MaxRetries: 3})

	for count, want := range map[int]bool{0: true, 2: true, 3: false, 4: false} {
		require.NoError(t, store.CreateRetryRecord(ctx, &domain.RetryRecord{JobID: "job-1", RetryCount: count, MaxRetries: 3}))
		got, err := svc.ShouldRetryJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, want, got, "retry_count=%d", count)
	}
}

func TestService_ScheduleRetry_HonorNextRetryAt(t *testing.T) {
	ctx := context.Background()
	svc, store, sched := newTestService(Config{HonorNextRetryAt: true})

	require.NoError(t, svc.ScheduleRetry(ctx, &domain.Job{ID: "job-1", JobType: "A"}, "timeout"))

	record, err := store.GetRetryRecord(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, sched.now)
	assert.Equal(t, record.NextRetryAt, sched.at["job-1"])
}

func TestService_ScheduleRetry_SchedulerError(t *testing.T) {
	svc, _, sched := newTestService(Config{})
	sched.err = errors.New("redis down")

	err := svc.ScheduleRetry(context.Background(), &domain.Job{ID: "job-1", JobType: "A"}, "timeout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestService_ScheduleRetry_JitterSpreadsSimultaneousFailures(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(Config{})
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	const jobs = 50
	for i := 0; i < jobs; i++ {
		job := &domain.Job{ID: fmt.Sprintf("job-%d", i), JobType: "A"}
		require.NoError(t, svc.ScheduleRetry(ctx, job, "Network timeout"))
	}

	distinct := make(map[time.Time]struct{})
	for i := 0; i < jobs; i++ {
		record, err := store.GetRetryRecord(ctx, fmt.Sprintf("job-%d", i))
		require.NoError(t, err)
		distinct[record.NextRetryAt] = struct{}{}
	}

	assert.Greater(t, len(distinct), jobs*8/10)
}

func TestService_Delay_Bounds(t *testing.T) {
	svc, _, _ := newTestService(Config{BaseDelay: time.Second, MaxDelay: 8 * time.Second})

	for attempt := 0; attempt < 10; attempt++ {
		window := time.Second << attempt
		if window > 8*time.Second {
			window = 8 * time.Second
		}
		d := svc.delay(attempt)
		assert.GreaterOrEqual(t, d, window/2)
		assert.LessOrEqual(t, d, window)
	}
}

func TestService_RemoveRetryInfo_Missing(t *testing.T) {
	svc, _, _ := newTestService(Config{})
	assert.NoError(t, svc.RemoveRetryInfo(context.Background(), "nope"))
}
