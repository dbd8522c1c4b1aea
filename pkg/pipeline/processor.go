// Package pipeline sequences decode, gate check, fetch, parse, compute,
// write, and commit for one notification, and owns the failure policy
// across that sequence.
package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reportflow/reportflow/pkg/dataset"
	rferrors "github.com/reportflow/reportflow/pkg/errors"
	"github.com/reportflow/reportflow/pkg/event"
	"github.com/reportflow/reportflow/pkg/metrics"
	"github.com/reportflow/reportflow/pkg/storage"
	"github.com/reportflow/reportflow/pkg/tracking"
)

// Config holds the eligibility and placement rules for the pipeline.
type Config struct {
	// InputContainer is the only container whose notifications are processed.
	InputContainer string

	// InputPrefix is the folder eligible files must live under.
	InputPrefix string

	// InputSuffix is the required file extension, matched case-insensitively.
	InputSuffix string

	// OutputPrefix is the folder report artifacts are written under, in the
	// same container as the input.
	OutputPrefix string
}

// Processor drives one file through the pipeline state machine. Each
// invocation is request-scoped; the only shared mutable state is the
// tracking store behind the gate.
type Processor struct {
	cfg    Config
	store  storage.ObjectStore
	gate   *tracking.Gate
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a processor.
func New(cfg Config, store storage.ObjectStore, gate *tracking.Gate, logger *slog.Logger) *Processor {
	if cfg.InputSuffix == "" {
		cfg.InputSuffix = ".csv"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:    cfg,
		store:  store,
		gate:   gate,
		logger: logger,
		tracer: otel.Tracer("reportflow/pipeline"),
	}
}

// Gate exposes the idempotency gate for tooling.
func (p *Processor) Gate() *tracking.Gate {
	return p.gate
}

// ObjectStore exposes the object store for tooling.
func (p *Processor) ObjectStore() storage.ObjectStore {
	return p.store
}

// OutputKey returns the deterministic report location for an input path:
// the input stem under the output prefix with a fixed suffix.
func (p *Processor) OutputKey(ref event.FileReference) string {
	return p.cfg.OutputPrefix + "/" + ref.Stem() + "_metrics.json"
}

// Eligible applies the business rules: right container, under the input
// prefix, carrying the input extension. Returns a CodeNotEligible error
// describing the first rule violated.
func (p *Processor) Eligible(ref event.FileReference) error {
	if ref.Container != p.cfg.InputContainer {
		return rferrors.New(rferrors.CodeNotEligible, "container is not the configured input container").
			WithContext("container", ref.Container).
			WithContext("expected", p.cfg.InputContainer)
	}
	if !strings.HasPrefix(ref.Path, p.cfg.InputPrefix+"/") {
		return rferrors.Newf(rferrors.CodeNotEligible, "file is outside %s/", p.cfg.InputPrefix).
			WithContext("path", ref.Path)
	}
	if !strings.HasSuffix(strings.ToLower(ref.Path), strings.ToLower(p.cfg.InputSuffix)) {
		return rferrors.Newf(rferrors.CodeNotEligible, "file does not end with %s", p.cfg.InputSuffix).
			WithContext("path", ref.Path)
	}
	return nil
}

// Process runs the state machine for one file reference.
//
// Eligibility failures and a gate held elsewhere end in OutcomeSkipped; a
// completed record ends in OutcomeDuplicate; otherwise the processor
// fetches, parses, computes, writes the report, and commits. Any failure
// after acquisition releases the pending record first so a redelivery
// starts clean, and the deterministic output key makes the re-run's write
// an idempotent overwrite.
func (p *Processor) Process(ctx context.Context, ref event.FileReference) Result {
	ctx, span := p.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("file.container", ref.Container),
			attribute.String("file.path", ref.Path),
		))
	defer span.End()

	if err := p.Eligible(ref); err != nil {
		p.logger.Info("skipping ineligible file", "file", ref.String(), "reason", err.Error())
		return Result{Outcome: OutcomeSkipped, Input: ref, Reason: err.Error()}
	}

	outcome, rec, err := p.gate.TryAcquire(ctx, ref)
	if err != nil {
		span.RecordError(err)
		p.logger.Error("gate acquisition failed", "file", ref.String(), "error", err)
		return Result{Outcome: OutcomeFailed, Input: ref, Reason: "tracking store unavailable", Err: err}
	}

	switch outcome {
	case tracking.OutcomeCompleted:
		p.logger.Info("file already processed", "file", ref.String(), "output", rec.OutputPath)
		return Result{
			Outcome:    OutcomeDuplicate,
			Input:      ref,
			OutputFile: rec.OutputPath,
			Reason:     "already processed",
		}
	case tracking.OutcomeInFlight:
		p.logger.Info("file is being processed elsewhere", "file", ref.String())
		return Result{Outcome: OutcomeSkipped, Input: ref, Reason: "processing already in flight"}
	case tracking.OutcomeBlocked:
		p.logger.Warn("file is blocked by a failed record", "file", ref.String())
		return Result{Outcome: OutcomeSkipped, Input: ref, Reason: "previous attempt marked failed"}
	}

	// Gate acquired: from here every failure releases the pending record.
	result := p.run(ctx, ref)
	if result.Outcome == OutcomeFailed {
		span.RecordError(result.Err)
		p.release(ctx, ref)
	}
	return result
}

// run executes fetch through commit under an acquired gate.
func (p *Processor) run(ctx context.Context, ref event.FileReference) Result {
	data, err := step(ctx, p.tracer, "fetch", func(ctx context.Context) ([]byte, error) {
		return p.store.Read(ctx, ref.Container, ref.Path)
	})
	if err != nil {
		p.logger.Error("fetch failed", "file", ref.String(), "error", err)
		return Result{Outcome: OutcomeFailed, Input: ref, Reason: "failed to read input object", Err: err}
	}

	ds, err := step(ctx, p.tracer, "parse", func(ctx context.Context) (*dataset.Dataset, error) {
		return dataset.Parse(data)
	})
	if err != nil {
		p.logger.Error("parse failed", "file", ref.String(), "error", err)
		return Result{Outcome: OutcomeFailed, Input: ref, Reason: "input is not readable as CSV", Err: err}
	}

	report := metrics.Compute(ds)

	outputKey := p.OutputKey(ref)
	payload, err := report.Marshal()
	if err != nil {
		err = rferrors.Wrap(err, rferrors.CodeWriteFailed, "failed to serialize report")
		p.logger.Error("serialize failed", "file", ref.String(), "error", err)
		return Result{Outcome: OutcomeFailed, Input: ref, Reason: "failed to serialize report", Err: err}
	}

	_, err = step(ctx, p.tracer, "write", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.store.Write(ctx, ref.Container, outputKey, payload, "application/json")
	})
	if err != nil {
		p.logger.Error("report write failed", "file", ref.String(), "output", outputKey, "error", err)
		return Result{Outcome: OutcomeFailed, Input: ref, Reason: "failed to write report", Err: err}
	}

	summary := &tracking.Summary{RowCount: report.RowCount, ColumnCount: report.ColumnCount}
	_, err = step(ctx, p.tracer, "commit", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.gate.CommitSuccess(ctx, ref, outputKey, summary)
	})
	if err != nil {
		// The report exists but the record does not say so. Releasing lets a
		// redelivery re-acquire, recompute, overwrite the same key, and
		// retry the commit.
		p.logger.Error("commit failed after write", "file", ref.String(), "output", outputKey, "error", err)
		return Result{Outcome: OutcomeFailed, Input: ref, OutputFile: outputKey, Reason: "failed to commit tracking record", Err: err}
	}

	p.logger.Info("file processed",
		"file", ref.String(),
		"output", outputKey,
		"rows", report.RowCount,
		"columns", report.ColumnCount)

	return Result{
		Outcome:    OutcomeCompleted,
		Input:      ref,
		OutputFile: outputKey,
		Report:     report,
	}
}

// release removes the pending record; a failure here is logged, not
// surfaced, since the pending TTL recovers the record eventually.
func (p *Processor) release(ctx context.Context, ref event.FileReference) {
	if err := p.gate.ReleaseOnFailure(ctx, ref); err != nil {
		p.logger.Error("failed to release pending record", "file", ref.String(), "error", err)
	}
}

// step wraps one pipeline stage in a span.
func step[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return v, err
}
