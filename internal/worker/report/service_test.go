package report

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/job-orchestrator/internal/worker/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	keys []string
	err  error
}

func (f *fakeArchiver) Archive(_ context.Context, key string, _ []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "mem://" + key, nil
}

func TestService_CreateReport(t *testing.T) {
	tests := []struct {
		name     string
		archiver *fakeArchiver
		wantKeys []string
	}{
		{name: "no archiver"},
		{name: "archived", archiver: &fakeArchiver{}, wantKeys: []string{"job-1/r.txt"}},
		{name: "archive failure ignored", archiver: &fakeArchiver{err: errors.New("access denied")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := storage.NewMemoryStore()
			logs := &bytes.Buffer{}

			var archiver Archiver
			if tt.archiver != nil {
				archiver = tt.archiver
			}
			svc := NewService(store, archiver, slog.New(slog.NewTextHandler(logs, nil)))

			report, err := svc.CreateReport(ctx, "job-1", "r.txt", "Total Tasks: 0", "text/plain")
			require.NoError(t, err)
			assert.NotEmpty(t, report.ID)
			assert.Equal(t, domain.ReportStatusGenerated, report.Status)

			stored, err := store.GetReportByJob(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, "Total Tasks: 0", stored.Content)

			if tt.archiver != nil {
				assert.Equal(t, tt.wantKeys, tt.archiver.keys)
				if tt.archiver.err != nil {
					assert.Contains(t, logs.String(), "Failed to archive report")
				}
			}
		})
	}
}
