// Package errors provides structured errors with codes and context for
// reportflow. The code decides how a failure is answered at the transport
// boundary: permanent failures suppress redelivery, transient ones request it.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeBadEnvelope Code = "E101" // malformed notification, permanent
	CodeNotEligible Code = "E102" // wrong location or extension, treated as skip
	CodeNotFound    Code = "E103" // input object missing, permanent
	CodePermission  Code = "E104" // access denied, permanent
	CodeParseFailed Code = "E105" // unreadable tabular content, permanent

	// Processing errors (2xx)
	CodeGateConflict Code = "E201" // commit invariant violated, fatal

	// Output errors (3xx)
	CodeWriteFailed Code = "E301" // report write failed, retry-eligible

	// Store errors (4xx)
	CodeStoreUnavailable Code = "E401" // object or tracking store unreachable, retry-eligible

	CodeUnknown Code = "E999"
)

// Error is the base error type carrying a code, message, cause, and context.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds a context key/value to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error. Returns nil for a nil cause.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code, or CodeUnknown.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsRetryable reports whether redelivering the triggering event could
// succeed. Unknown errors count as retryable so that nothing is dropped
// without a definitive classification.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeStoreUnavailable, CodeWriteFailed, CodeUnknown:
		return true
	default:
		return false
	}
}
