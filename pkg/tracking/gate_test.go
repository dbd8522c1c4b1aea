package tracking

import (
	"context"
	"sync"
	"testing"

	rferrors "github.com/reportflow/reportflow/pkg/errors"
	"github.com/reportflow/reportflow/pkg/event"
)

var testRef = event.FileReference{Container: "data", Path: "raw-data/orders.csv"}

func TestGate_AcquireCommitLookup(t *testing.T) {
	gate := NewGate(NewMemoryStore(), "")
	ctx := context.Background()

	outcome, rec, err := gate.TryAcquire(ctx, testRef)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if outcome != OutcomeAcquired {
		t.Fatalf("Expected acquired, got %s", outcome)
	}
	if rec.Status != StatusPending {
		t.Errorf("Expected pending record, got %s", rec.Status)
	}

	summary := &Summary{RowCount: 10, ColumnCount: 3}
	if err := gate.CommitSuccess(ctx, testRef, "reports/orders_metrics.json", summary); err != nil {
		t.Fatalf("CommitSuccess failed: %v", err)
	}

	outcome, rec, err = gate.TryAcquire(ctx, testRef)
	if err != nil {
		t.Fatalf("TryAcquire after commit failed: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("Expected already-completed, got %s", outcome)
	}
	if rec.OutputPath != "reports/orders_metrics.json" {
		t.Errorf("Expected output path recorded, got %q", rec.OutputPath)
	}
	if rec.Metrics == nil || rec.Metrics.RowCount != 10 {
		t.Errorf("Expected metrics summary on record, got %+v", rec.Metrics)
	}
	if rec.ProcessedAt == nil {
		t.Error("Expected processed_at on completed record")
	}
}

func TestGate_ConcurrentAcquireSingleWinner(t *testing.T) {
	gate := NewGate(NewMemoryStore(), "")
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	outcomes := make([]Outcome, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, _, err := gate.TryAcquire(ctx, testRef)
			if err != nil {
				t.Errorf("TryAcquire failed: %v", err)
				return
			}
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	acquired := 0
	for _, o := range outcomes {
		switch o {
		case OutcomeAcquired:
			acquired++
		case OutcomeInFlight:
		default:
			t.Errorf("Unexpected outcome %s", o)
		}
	}
	if acquired != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", acquired)
	}
}

func TestGate_CommitIdempotent(t *testing.T) {
	gate := NewGate(NewMemoryStore(), "")
	ctx := context.Background()

	gate.TryAcquire(ctx, testRef)
	if err := gate.CommitSuccess(ctx, testRef, "reports/orders_metrics.json", nil); err != nil {
		t.Fatalf("First commit failed: %v", err)
	}
	if err := gate.CommitSuccess(ctx, testRef, "reports/orders_metrics.json", nil); err != nil {
		t.Fatalf("Repeat commit with same output must be a no-op, got: %v", err)
	}
}

func TestGate_CommitConflict(t *testing.T) {
	gate := NewGate(NewMemoryStore(), "")
	ctx := context.Background()

	gate.TryAcquire(ctx, testRef)
	if err := gate.CommitSuccess(ctx, testRef, "reports/orders_metrics.json", nil); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	err := gate.CommitSuccess(ctx, testRef, "reports/other.json", nil)
	if err == nil {
		t.Fatal("Expected conflict error, got nil")
	}
	if !rferrors.IsCode(err, rferrors.CodeGateConflict) {
		t.Errorf("Expected CodeGateConflict, got %v", rferrors.GetCode(err))
	}
}

func TestGate_ReleaseAllowsReacquire(t *testing.T) {
	gate := NewGate(NewMemoryStore(), "")
	ctx := context.Background()

	outcome, _, _ := gate.TryAcquire(ctx, testRef)
	if outcome != OutcomeAcquired {
		t.Fatalf("Expected acquired, got %s", outcome)
	}

	if err := gate.ReleaseOnFailure(ctx, testRef); err != nil {
		t.Fatalf("ReleaseOnFailure failed: %v", err)
	}

	outcome, _, err := gate.TryAcquire(ctx, testRef)
	if err != nil {
		t.Fatalf("Re-acquire failed: %v", err)
	}
	if outcome != OutcomeAcquired {
		t.Errorf("Expected acquired after release, got %s", outcome)
	}
}

func TestGate_ReleaseNeverRemovesCompleted(t *testing.T) {
	gate := NewGate(NewMemoryStore(), "")
	ctx := context.Background()

	gate.TryAcquire(ctx, testRef)
	gate.CommitSuccess(ctx, testRef, "reports/orders_metrics.json", nil)

	if err := gate.ReleaseOnFailure(ctx, testRef); err != nil {
		t.Fatalf("ReleaseOnFailure on completed record failed: %v", err)
	}

	outcome, _, err := gate.TryAcquire(ctx, testRef)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Errorf("Completed record must survive release, got %s", outcome)
	}
}

func TestGate_BlockedOnFailedRecord(t *testing.T) {
	store := NewMemoryStore()
	gate := NewGate(store, "")
	ctx := context.Background()

	_, rec, _ := gate.TryAcquire(ctx, testRef)
	rec.Status = StatusFailed
	// Simulate an operator marking the record failed.
	store.mu.Lock()
	store.records[rec.Key] = clone(rec)
	store.mu.Unlock()

	outcome, _, err := gate.TryAcquire(ctx, testRef)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if outcome != OutcomeBlocked {
		t.Errorf("Expected blocked, got %s", outcome)
	}
}

func TestGate_NamespacedKeys(t *testing.T) {
	gate := NewGate(NewMemoryStore(), "custom_ns")
	if got := gate.Key(testRef); got != "custom_ns:data/raw-data/orders.csv" {
		t.Errorf("Unexpected key %q", got)
	}

	gate = NewGate(NewMemoryStore(), "")
	if got := gate.Key(testRef); got != "processed_files:data/raw-data/orders.csv" {
		t.Errorf("Expected default namespace, got %q", got)
	}
}
