// Package apperrors provides the typed error taxonomy for job-run failures.
//
// Classification is the contract the rest of the system depends on:
// ErrThrottled and ErrUnavailable are transient and may be retried per the
// backoff policy; ErrValidation, ErrUnauthorized, ErrInvalidRequest and
// ErrNotFound are fatal and must never be retried; ErrExhausted marks a
// consumed retry budget; ErrRemoteFailure carries the remote system's own
// failure reason for a job that ran and failed.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation     = errors.New("validation error")
	ErrThrottled      = errors.New("request throttled")
	ErrUnavailable    = errors.New("control plane unavailable")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrExhausted      = errors.New("retry budget exhausted")
	ErrRemoteFailure  = errors.New("remote job failed")
	ErrCancelled      = errors.New("job run cancelled")
)

// Error provides a structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "virtualClusterId")
	Resource string // For not found (e.g., "job run")
	Op       string // Operation that failed (e.g., "emr.DescribeJobRun")
	Reason   string // Verbatim remote failure reason, if any
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// Throttled creates a retryable throttling error for a failed operation.
func Throttled(op string, cause error) error {
	return &Error{
		Sentinel: ErrThrottled,
		Message:  fmt.Sprintf("%s: throttled: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Unavailable creates a retryable availability error for a failed operation.
func Unavailable(op string, cause error) error {
	return &Error{
		Sentinel: ErrUnavailable,
		Message:  fmt.Sprintf("%s: unavailable: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Unauthorized creates a fatal authorization error.
func Unauthorized(op string, cause error) error {
	return &Error{
		Sentinel: ErrUnauthorized,
		Message:  fmt.Sprintf("%s: unauthorized: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// InvalidRequest creates a fatal error for a request the control plane rejected.
func InvalidRequest(op string, cause error) error {
	return &Error{
		Sentinel: ErrInvalidRequest,
		Message:  fmt.Sprintf("%s: rejected: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// NotFound creates a fatal not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Exhausted creates an error marking a consumed retry budget.
// The last transient error is preserved as the cause.
func Exhausted(op string, attempts int, cause error) error {
	return &Error{
		Sentinel: ErrExhausted,
		Message:  fmt.Sprintf("%s: gave up after %d attempts: %v", op, attempts, cause),
		Op:       op,
		Cause:    cause,
	}
}

// RemoteFailure creates an error for a job run the remote system reports as
// failed. The reason text is carried verbatim.
func RemoteFailure(jobID, reason string) error {
	return &Error{
		Sentinel: ErrRemoteFailure,
		Message:  fmt.Sprintf("job run %s failed: %s", jobID, reason),
		Resource: jobID,
		Reason:   reason,
	}
}

// Retryable reports whether an error belongs to a transient class.
// Unclassified errors are treated as fatal.
func Retryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrUnavailable)
}

// Class returns a short label for the error's class, for logs and metric
// attributes.
func Class(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrThrottled):
		return "throttled"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExhausted):
		return "exhausted"
	case errors.Is(err, ErrRemoteFailure):
		return "remote_failure"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "unclassified"
	}
}
