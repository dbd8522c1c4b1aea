package pipeline

import (
	rferrors "github.com/reportflow/reportflow/pkg/errors"
	"github.com/reportflow/reportflow/pkg/event"
	"github.com/reportflow/reportflow/pkg/metrics"
)

// Outcome is the terminal state of one pipeline invocation.
type Outcome int

const (
	// OutcomeCompleted means the file was processed and its report written.
	OutcomeCompleted Outcome = iota

	// OutcomeSkipped means the file is not eligible or another attempt owns
	// it; a success response with no processing.
	OutcomeSkipped

	// OutcomeDuplicate means the file was already processed; a success
	// response reporting the prior output.
	OutcomeDuplicate

	// OutcomeFailed means processing stopped on an error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes how an invocation ended. Every terminal state carries
// enough to produce a response body naming the file and the reason.
type Result struct {
	Outcome    Outcome
	Input      event.FileReference
	OutputFile string
	Report     *metrics.Report
	Reason     string
	Err        error
}

// Retryable reports whether redelivery of the triggering event should be
// requested.
func (r Result) Retryable() bool {
	return r.Err != nil && rferrors.IsRetryable(r.Err)
}

// ErrorCode returns the classification of the failure, or CodeUnknown.
func (r Result) ErrorCode() rferrors.Code {
	if r.Err == nil {
		return ""
	}
	return rferrors.GetCode(r.Err)
}
