package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all pipeline failure modes
type ErrorCode string

const (
	// SourceUnavailable indicates a platform's batch is missing or unreadable.
	// Recovered: recorded per-source, the run continues.
	SourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	// AmbiguousIdentity indicates a similarity match below the confidence
	// threshold but above the secondary "possible" threshold. Recovered:
	// recorded as a low-confidence binding for manual review.
	AmbiguousIdentity ErrorCode = "AMBIGUOUS_IDENTITY"
	// UndatedMessage indicates a message without a parseable timestamp.
	// Recovered: placed in the undated partition, never dropped.
	UndatedMessage ErrorCode = "UNDATED_MESSAGE"
	// ScoringUnavailable indicates the external classifier timed out or
	// errored. Recovered: lexicon-only score used, annotated on the message.
	ScoringUnavailable ErrorCode = "SCORING_UNAVAILABLE"
	// InvalidConfiguration indicates a bad lexicon or non-positive
	// threshold/window. Fatal at orchestration start.
	InvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	// RegistryConflict indicates an attempt to rebind an existing alias
	// through the heuristic path.
	RegistryConflict ErrorCode = "REGISTRY_CONFLICT"
	// StorageFailure indicates the registry or cache store is unreadable.
	StorageFailure ErrorCode = "STORAGE_FAILURE"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a pipeline error with a stable code, message, and
// optional structured details.
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new Error
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new Error with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// IsFatal reports whether an error code must abort the whole run.
// Only configuration errors are fatal; every other failure mode is
// accumulated into the Analysis rather than raised.
func IsFatal(code ErrorCode) bool {
	return code == InvalidConfiguration
}

// CodeOf extracts the ErrorCode from err, or InternalError if err is not
// a pipeline *Error.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return InternalError
}
