package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	rferrors "github.com/reportflow/reportflow/pkg/errors"
	"github.com/reportflow/reportflow/pkg/event"
	"github.com/reportflow/reportflow/pkg/storage"
	"github.com/reportflow/reportflow/pkg/tracking"
)

const testContainer = "gcs-csv-reporter"

func newTestProcessor(t *testing.T) (*Processor, *storage.LocalStore, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("Failed to create object store: %v", err)
	}

	gate := tracking.NewGate(tracking.NewMemoryStore(), "")
	p := New(Config{
		InputContainer: testContainer,
		InputPrefix:    "raw-data",
		InputSuffix:    ".csv",
		OutputPrefix:   "reports",
	}, store, gate, nil)

	return p, store, dir
}

func putObject(t *testing.T, dir, key, content string) {
	t.Helper()
	full := filepath.Join(dir, testContainer, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("Failed to create object directory: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write object: %v", err)
	}
}

func TestProcess_EndToEnd(t *testing.T) {
	p, store, dir := newTestProcessor(t)
	ctx := context.Background()

	putObject(t, dir, "raw-data/sales.csv", "id,amount,region\n1,10.5,east\n2,,west\n3,7,east\n")

	ref := event.FileReference{Container: testContainer, Path: "raw-data/sales.csv"}
	result := p.Process(ctx, ref)

	if result.Outcome != OutcomeCompleted {
		t.Fatalf("Expected completed, got %s (err=%v)", result.Outcome, result.Err)
	}
	if result.OutputFile != "reports/sales_metrics.json" {
		t.Errorf("Unexpected output key %q", result.OutputFile)
	}

	data, err := store.Read(ctx, testContainer, result.OutputFile)
	if err != nil {
		t.Fatalf("Report object not written: %v", err)
	}

	var report struct {
		RowCount        int               `json:"row_count"`
		ColumnCount     int               `json:"column_count"`
		NullCounts      map[string]int    `json:"null_counts"`
		DatatypeSummary map[string]string `json:"datatype_summary"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
	if report.RowCount != 3 || report.ColumnCount != 3 {
		t.Errorf("Unexpected counts: %+v", report)
	}
	if report.NullCounts["amount"] != 1 {
		t.Errorf("Expected 1 null in amount, got %d", report.NullCounts["amount"])
	}
	if report.DatatypeSummary["id"] != "integer" ||
		report.DatatypeSummary["amount"] != "float" ||
		report.DatatypeSummary["region"] != "text" {
		t.Errorf("Unexpected datatypes: %v", report.DatatypeSummary)
	}

	// Tracking record carries the summary.
	rec, err := p.Gate().Store().Get(ctx, p.Gate().Key(ref))
	if err != nil {
		t.Fatalf("Tracking record missing: %v", err)
	}
	if rec.Status != tracking.StatusCompleted {
		t.Errorf("Expected completed record, got %s", rec.Status)
	}
	if rec.Metrics == nil || rec.Metrics.RowCount != 3 {
		t.Errorf("Summary not recorded: %+v", rec.Metrics)
	}
}

func TestProcess_DuplicateDoesNotRewrite(t *testing.T) {
	p, _, dir := newTestProcessor(t)
	ctx := context.Background()

	putObject(t, dir, "raw-data/a.csv", "x\n1\n")

	ref := event.FileReference{Container: testContainer, Path: "raw-data/a.csv"}
	first := p.Process(ctx, ref)
	if first.Outcome != OutcomeCompleted {
		t.Fatalf("First run failed: %s (%v)", first.Outcome, first.Err)
	}

	reportPath := filepath.Join(dir, testContainer, "reports", "a_metrics.json")
	before, err := os.Stat(reportPath)
	if err != nil {
		t.Fatalf("Report missing: %v", err)
	}

	second := p.Process(ctx, ref)
	if second.Outcome != OutcomeDuplicate {
		t.Fatalf("Expected duplicate, got %s", second.Outcome)
	}
	if second.OutputFile != first.OutputFile {
		t.Errorf("Duplicate must report the original output, got %q", second.OutputFile)
	}

	after, err := os.Stat(reportPath)
	if err != nil {
		t.Fatalf("Report missing after duplicate: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
		t.Error("Duplicate delivery must not rewrite the report")
	}
}

func TestProcess_SkipsIneligible(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	ctx := context.Background()

	tests := []struct {
		name string
		ref  event.FileReference
	}{
		{"wrong container", event.FileReference{Container: "other", Path: "raw-data/a.csv"}},
		{"outside prefix", event.FileReference{Container: testContainer, Path: "staging/a.csv"}},
		{"wrong extension", event.FileReference{Container: testContainer, Path: "raw-data/a.json"}},
		{"prefix as file name", event.FileReference{Container: testContainer, Path: "raw-data-old/a.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := p.Process(ctx, tt.ref)
			if result.Outcome != OutcomeSkipped {
				t.Errorf("Expected skipped, got %s", result.Outcome)
			}
		})
	}
}

func TestProcess_UppercaseExtension(t *testing.T) {
	p, _, dir := newTestProcessor(t)
	ctx := context.Background()

	putObject(t, dir, "raw-data/B.CSV", "x\n1\n")

	ref := event.FileReference{Container: testContainer, Path: "raw-data/B.CSV"}
	result := p.Process(ctx, ref)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("Expected completed for uppercase extension, got %s (%v)", result.Outcome, result.Err)
	}
	if result.OutputFile != "reports/B_metrics.json" {
		t.Errorf("Unexpected output key %q", result.OutputFile)
	}
}

func TestProcess_MissingObjectReleasesGate(t *testing.T) {
	p, _, dir := newTestProcessor(t)
	ctx := context.Background()

	ref := event.FileReference{Container: testContainer, Path: "raw-data/ghost.csv"}
	result := p.Process(ctx, ref)

	if result.Outcome != OutcomeFailed {
		t.Fatalf("Expected failed, got %s", result.Outcome)
	}
	if !rferrors.IsCode(result.Err, rferrors.CodeNotFound) {
		t.Errorf("Expected CodeNotFound, got %v", result.Err)
	}

	// The pending record must be gone so a redelivery can succeed.
	if _, err := p.Gate().Store().Get(ctx, p.Gate().Key(ref)); err != tracking.ErrNotFound {
		t.Errorf("Pending record must be released on failure, got %v", err)
	}

	// The file appears and the redelivery succeeds.
	putObject(t, dir, "raw-data/ghost.csv", "x\n1\n")
	result = p.Process(ctx, ref)
	if result.Outcome != OutcomeCompleted {
		t.Errorf("Expected completed after redelivery, got %s (%v)", result.Outcome, result.Err)
	}
}

func TestProcess_ParseFailureReleasesGate(t *testing.T) {
	p, store, dir := newTestProcessor(t)
	ctx := context.Background()

	putObject(t, dir, "raw-data/bad.csv", "a,b\n1,2,3\n")

	ref := event.FileReference{Container: testContainer, Path: "raw-data/bad.csv"}
	result := p.Process(ctx, ref)

	if result.Outcome != OutcomeFailed {
		t.Fatalf("Expected failed, got %s", result.Outcome)
	}
	if !rferrors.IsCode(result.Err, rferrors.CodeParseFailed) {
		t.Errorf("Expected CodeParseFailed, got %v", result.Err)
	}
	if result.Retryable() {
		t.Error("Parse failures must not request redelivery")
	}

	// No report half-written.
	exists, err := store.Exists(ctx, testContainer, "reports/bad_metrics.json")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("No report must be written for unparseable input")
	}

	if _, err := p.Gate().Store().Get(ctx, p.Gate().Key(ref)); err != tracking.ErrNotFound {
		t.Errorf("Pending record must be released on parse failure, got %v", err)
	}
}

func TestProcess_EmptyFile(t *testing.T) {
	p, store, dir := newTestProcessor(t)
	ctx := context.Background()

	putObject(t, dir, "raw-data/empty.csv", "")

	ref := event.FileReference{Container: testContainer, Path: "raw-data/empty.csv"}
	result := p.Process(ctx, ref)

	if result.Outcome != OutcomeCompleted {
		t.Fatalf("Expected completed for empty file, got %s (%v)", result.Outcome, result.Err)
	}
	if result.Report.RowCount != 0 || result.Report.ColumnCount != 0 {
		t.Errorf("Expected zero counts, got %+v", result.Report)
	}

	data, err := store.Read(ctx, testContainer, result.OutputFile)
	if err != nil {
		t.Fatalf("Report not written: %v", err)
	}
	var report map[string]interface{}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
}

func TestProcess_InFlightSkipped(t *testing.T) {
	p, _, dir := newTestProcessor(t)
	ctx := context.Background()

	putObject(t, dir, "raw-data/slow.csv", "x\n1\n")
	ref := event.FileReference{Container: testContainer, Path: "raw-data/slow.csv"}

	// Hold the gate as if another worker owned the file.
	outcome, _, err := p.Gate().TryAcquire(ctx, ref)
	if err != nil || outcome != tracking.OutcomeAcquired {
		t.Fatalf("Setup acquire failed: %s %v", outcome, err)
	}

	result := p.Process(ctx, ref)
	if result.Outcome != OutcomeSkipped {
		t.Errorf("Expected skipped while in flight, got %s", result.Outcome)
	}
}

func TestOutputKey(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	tests := []struct {
		path string
		want string
	}{
		{"raw-data/sales.csv", "reports/sales_metrics.json"},
		{"raw-data/2024/q1.csv", "reports/q1_metrics.json"},
		{"raw-data/data.v2.csv", "reports/data.v2_metrics.json"},
	}
	for _, tt := range tests {
		ref := event.FileReference{Container: testContainer, Path: tt.path}
		if got := p.OutputKey(ref); got != tt.want {
			t.Errorf("OutputKey(%q): expected %q, got %q", tt.path, tt.want, got)
		}
	}
}
