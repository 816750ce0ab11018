package driven

import (
	"context"
	"time"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
)

// CheckpointRecord is a persisted checkpoint with bookkeeping about the
// run that produced it.
type CheckpointRecord struct {
	BackendName string
	Origin      string
	Category    string
	Checkpoint  domain.FetchCheckpoint
	Fetched     int
	UpdatedAt   time.Time
}

// CheckpointStore persists fetch checkpoints between runs. Keys are
// (backend, origin, category).
type CheckpointStore interface {
	// Save stores or replaces a checkpoint record.
	Save(ctx context.Context, rec CheckpointRecord) error

	// Get retrieves the checkpoint for a key. Returns nil when no
	// prior run was recorded.
	Get(ctx context.Context, backendName, origin, category string) (*CheckpointRecord, error)

	// Delete removes the checkpoint for a key.
	Delete(ctx context.Context, backendName, origin, category string) error

	// List returns all recorded checkpoints.
	List(ctx context.Context) ([]CheckpointRecord, error)
}
