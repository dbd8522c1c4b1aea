package tracking

import (
	"context"
	"errors"
	"time"

	rferrors "github.com/reportflow/reportflow/pkg/errors"
	"github.com/reportflow/reportflow/pkg/event"
)

// Outcome of a gate acquisition attempt.
type Outcome int

const (
	// OutcomeAcquired means the caller won the right to process the file.
	OutcomeAcquired Outcome = iota

	// OutcomeCompleted means the file was already processed successfully.
	OutcomeCompleted

	// OutcomeInFlight means another attempt currently holds the file.
	OutcomeInFlight

	// OutcomeBlocked means a previous attempt was marked failed and the
	// file will not be retried without operator intervention.
	OutcomeBlocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcquired:
		return "acquired"
	case OutcomeCompleted:
		return "already-completed"
	case OutcomeInFlight:
		return "in-flight"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Gate enforces at-most-once processing per file reference. All methods are
// safe under arbitrary interleaving of concurrent invocations; exclusivity
// comes from the store's conditional-create guarantee.
type Gate struct {
	store     Store
	namespace string
}

// NewGate creates a gate over the given record store. The namespace is
// prepended to every record key so independent deployments can share one
// store.
func NewGate(store Store, namespace string) *Gate {
	if namespace == "" {
		namespace = "processed_files"
	}
	return &Gate{store: store, namespace: namespace}
}

// Key returns the normalized record identifier for a file reference.
func (g *Gate) Key(ref event.FileReference) string {
	return g.namespace + ":" + ref.String()
}

// Store exposes the underlying record store for health checks and tooling.
func (g *Gate) Store() Store {
	return g.store
}

// TryAcquire atomically claims the right to process ref. Exactly one of any
// set of concurrent callers for the same reference observes
// OutcomeAcquired. A store failure is transient: the caller must surface it
// as retry-eligible rather than proceed unguarded.
func (g *Gate) TryAcquire(ctx context.Context, ref event.FileReference) (Outcome, *Record, error) {
	rec := &Record{
		Key:       g.Key(ref),
		InputPath: ref.String(),
		Status:    StatusPending,
		UpdatedAt: time.Now().UTC(),
	}

	existing, created, err := g.store.CreatePending(ctx, rec)
	if err != nil {
		return 0, nil, rferrors.Wrap(err, rferrors.CodeStoreUnavailable, "tracking store conditional create failed").
			WithContext("file", ref.String())
	}
	if created {
		return OutcomeAcquired, rec, nil
	}

	switch existing.Status {
	case StatusCompleted:
		return OutcomeCompleted, existing, nil
	case StatusFailed:
		return OutcomeBlocked, existing, nil
	default:
		return OutcomeInFlight, existing, nil
	}
}

// CommitSuccess transitions the record for ref to completed, recording the
// output path and metrics summary. Committing twice with the same output
// path is a no-op; a differing output path on a completed record violates
// the gate's exclusivity invariant and fails loudly.
func (g *Gate) CommitSuccess(ctx context.Context, ref event.FileReference, outputPath string, summary *Summary) error {
	now := time.Now().UTC()
	rec := &Record{
		Key:         g.Key(ref),
		InputPath:   ref.String(),
		Status:      StatusCompleted,
		OutputPath:  outputPath,
		Metrics:     summary,
		UpdatedAt:   now,
		ProcessedAt: &now,
	}

	err := g.store.Complete(ctx, rec)
	if errors.Is(err, ErrConflict) {
		return rferrors.Wrap(err, rferrors.CodeGateConflict, "completed record disagrees on output path").
			WithContext("file", ref.String()).
			WithContext("output", outputPath)
	}
	if err != nil {
		return rferrors.Wrap(err, rferrors.CodeStoreUnavailable, "tracking store commit failed").
			WithContext("file", ref.String())
	}
	return nil
}

// ReleaseOnFailure abandons an acquired claim by removing the pending
// record, so a later redelivery starts clean and can re-acquire. Completed
// records are never removed.
func (g *Gate) ReleaseOnFailure(ctx context.Context, ref event.FileReference) error {
	if err := g.store.DeletePending(ctx, g.Key(ref)); err != nil {
		return rferrors.Wrap(err, rferrors.CodeStoreUnavailable, "tracking store release failed").
			WithContext("file", ref.String())
	}
	return nil
}
