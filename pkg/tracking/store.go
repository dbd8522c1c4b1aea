// Package tracking implements duplicate suppression for the processing
// pipeline. A Store holds one durable record per input file; the Gate layers
// the acquire/commit/release protocol on top. Correctness rests entirely on
// the store's atomic conditional create, never on in-process locking.
package tracking

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status of a processing record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Summary holds the headline numbers recorded alongside a completed file.
type Summary struct {
	RowCount    int `json:"row_count"`
	ColumnCount int `json:"column_count"`
}

// Record is the durable marker of a file's processing status. It is the
// sole source of truth for duplicate suppression.
type Record struct {
	Key         string     `json:"key"`
	InputPath   string     `json:"input_path"`
	Status      Status     `json:"status"`
	OutputPath  string     `json:"output_path,omitempty"`
	Metrics     *Summary   `json:"metrics_summary,omitempty"`
	UpdatedAt   time.Time  `json:"last_updated"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = errors.New("tracking: record not found")

	// ErrConflict is returned when completing a record that is already
	// completed with a different output path. This should never occur under
	// correct gate operation.
	ErrConflict = errors.New("tracking: record already completed with a different output path")
)

// Store persists processing records. Implementations must make CreatePending
// a single atomic conditional write: two concurrent calls for the same key
// must never both report created.
type Store interface {
	// CreatePending stores rec (which must carry StatusPending) if and only
	// if no record exists for rec.Key. When a record already exists it is
	// returned with created=false.
	CreatePending(ctx context.Context, rec *Record) (existing *Record, created bool, err error)

	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// Complete transitions the record for rec.Key to StatusCompleted.
	// Completing an already-completed record with the same output path is a
	// no-op; with a different output path it returns ErrConflict.
	Complete(ctx context.Context, rec *Record) error

	// DeletePending removes the record for key only while it is pending.
	// Removing an absent or completed record is a no-op.
	DeletePending(ctx context.Context, key string) error

	// Ping checks store reachability.
	Ping(ctx context.Context) error

	// Name identifies the backend for logging.
	Name() string

	Close() error
}

// sanitizeKey removes characters that are unsafe in file names and awkward
// in store keys.
func sanitizeKey(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
