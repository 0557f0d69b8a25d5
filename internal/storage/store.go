package storage

import (
	"context"

	"github.com/docuflow/docproc-worker/internal/pipeline"
)

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	DocumentID       string
	Status           string
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	EngineUsed       string
	Metadata         map[string]interface{}
}

// Store persists job lifecycle updates and finished results. The worker runs
// against NopStore when no database is configured.
type Store interface {
	UpdateJobStatus(ctx context.Context, update *JobUpdate) error
	SaveResult(ctx context.Context, jobID string, result *pipeline.ProcessingResult) error
	Ping(ctx context.Context) error
	Close() error
}

// NopStore discards everything. Used when DATABASE_URL is unset and in tests.
type NopStore struct{}

func (NopStore) UpdateJobStatus(context.Context, *JobUpdate) error { return nil }
func (NopStore) SaveResult(context.Context, string, *pipeline.ProcessingResult) error {
	return nil
}
func (NopStore) Ping(context.Context) error { return nil }
func (NopStore) Close() error               { return nil }
