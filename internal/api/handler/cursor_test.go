package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/api/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCursor_RoundTrip(t *testing.T) {
	in := &storage.JobCursor{
		CreatedAt: time.Date(2025, 6, 1, 10, 30, 0, 123456789, time.UTC),
		JobID:     "6f1c2b8e-0000-4000-8000-000000000001",
	}

	out, err := DecodeJobCursor(EncodeJobCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.JobID, out.JobID)
}

func TestDecodeJobCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{name: "not base64", cursor: "%%%"},
		{name: "missing separator", cursor: base64.URLEncoding.EncodeToString([]byte("12345"))},
		{name: "missing job id", cursor: base64.URLEncoding.EncodeToString([]byte("12345|"))},
		{name: "bad timestamp", cursor: base64.URLEncoding.EncodeToString([]byte("yesterday|job-1"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJobCursor(tt.cursor)
			assert.Error(t, err)
		})
	}
}

func TestDecodeJobCursor_Empty(t *testing.T) {
	cursor, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}
