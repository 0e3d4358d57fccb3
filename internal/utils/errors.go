package utils

import (
	"errors"
	"fmt"
)

// Sentinel outcomes of an update cycle that are not failures.
var (
	// ErrConcurrentUpdateRejected is returned when a trigger arrives while
	// another cycle holds the single-flight lock.
	ErrConcurrentUpdateRejected = errors.New("update cycle already running")
	// ErrBucketCompleted is returned when the current minute bucket has
	// already been written.
	ErrBucketCompleted = errors.New("minute bucket already recorded")
	// ErrOutsideWindow is returned for scheduled ticks outside the
	// operating window.
	ErrOutsideWindow = errors.New("tick outside operating window")
)

// ValidationError represents an error occurring during data validation.
type ValidationError struct {
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with a specific message.
//
// Parameters:
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
//
// Parameters:
//   - format: The format string.
//   - args: Arguments for the format string.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// NetworkError wraps a transport failure while fetching the source page.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError reports a non-success response from the source page.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// MalformedRecordError is raised when a record fails the invariant check
// that precedes reconciliation.
type MalformedRecordError struct {
	Field   string
	Message string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: %s: %s", e.Field, e.Message)
}

// NewMalformedRecordErrorf creates a MalformedRecordError for field.
//
// Parameters:
//   - field: The offending field name.
//   - format: The format string.
//   - args: Arguments for the format string.
//
// Returns:
//   - An error interface wrapping the MalformedRecordError.
func NewMalformedRecordErrorf(field, format string, args ...interface{}) error {
	return &MalformedRecordError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// StoreWriteError reports a failed write to the persisted log. Partial is
// set when some cells of the row were written before the failure.
type StoreWriteError struct {
	Op      string
	Row     int
	Written int
	Partial bool
	Err     error
}

func (e *StoreWriteError) Error() string {
	if e.Partial {
		return fmt.Sprintf("%s row %d: partial write (%d cells written): %v", e.Op, e.Row, e.Written, e.Err)
	}
	return fmt.Sprintf("%s row %d: %v", e.Op, e.Row, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// IsRejection reports whether err is an expected non-failure outcome.
func IsRejection(err error) bool {
	return errors.Is(err, ErrConcurrentUpdateRejected) ||
		errors.Is(err, ErrBucketCompleted) ||
		errors.Is(err, ErrOutsideWindow)
}
