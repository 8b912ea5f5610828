// Package errors defines structured error types for the store.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// ErrValidationFailed is returned when an operation is rejected before it
	// is queued.
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrInvalidName is returned when a database or table name is not a
	// valid file name.
	ErrInvalidName ErrorCode = "INVALID_NAME"

	// ErrDatabaseNotFound is returned when a database catalog does not exist.
	ErrDatabaseNotFound ErrorCode = "DATABASE_NOT_FOUND"
	// ErrTableNotFound is returned when a table file or catalog entry does not
	// exist.
	ErrTableNotFound ErrorCode = "TABLE_NOT_FOUND"

	// ErrCorruptTable is returned when a table file cannot be parsed or breaks
	// the index invariants.
	ErrCorruptTable ErrorCode = "CORRUPT_TABLE"
	// ErrStorageError is returned when a file operation fails.
	ErrStorageError ErrorCode = "STORAGE_ERROR"

	// ErrApplyFailed is returned when a caller supplied predicate or update
	// fails while queued operations are applied.
	ErrApplyFailed ErrorCode = "APPLY_FAILED"
	// ErrInternal is returned for unexpected failures.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is a concrete error type with a code and optional details.
type Error struct {
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		code:    code,
		message: message,
		details: make(map[string]any),
	}
}

// WithDetails adds details to the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	for k, v := range details {
		e.details[k] = v
	}
	return e
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *Error) Wrap(err error) *Error {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *Error) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// Is reports whether target is an *Error with the same code. It makes
// errors.Is(err, errors.New(code, "")) match on the code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// ExitCode maps the error code to a process exit status.
func (e *Error) ExitCode() int {
	switch e.code {
	case ErrValidationFailed, ErrInvalidName:
		return 2
	case ErrDatabaseNotFound, ErrTableNotFound:
		return 3
	case ErrCorruptTable:
		return 4
	default:
		return 1
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.code
	}
	return ""
}

// ExitCode returns the exit status for err: 0 for nil, 1 for errors that do
// not carry a code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.ExitCode()
	}
	return 1
}

// Predefined error constructors for common cases

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(ErrValidationFailed, message)
}

// InvalidName creates an error for a name that is not a valid file name.
func InvalidName(message string) *Error {
	return New(ErrInvalidName, message)
}

// DatabaseNotFound creates an error for a missing database.
func DatabaseNotFound(db string) *Error {
	return New(ErrDatabaseNotFound, fmt.Sprintf("database %s not found", db)).WithDetail("database", db)
}

// TableNotFound creates an error for a missing table.
func TableNotFound(db, table string) *Error {
	return New(ErrTableNotFound, fmt.Sprintf("table %s/%s not found", db, table)).
		WithDetails(map[string]any{"database": db, "table": table})
}

// CorruptTable creates an error for an unreadable table file.
func CorruptTable(path string, err error) *Error {
	return New(ErrCorruptTable, fmt.Sprintf("table file %s is corrupt", path)).WithDetail("path", path).Wrap(err)
}

// Storage creates an error wrapping a failed file operation.
func Storage(message string, err error) *Error {
	return New(ErrStorageError, message).Wrap(err)
}

// ApplyFailed creates an error for a failed fold of queued operations.
func ApplyFailed(table string, dropped int, err error) *Error {
	return New(ErrApplyFailed, fmt.Sprintf("failed to apply %d queued operations to %s", dropped, table)).
		WithDetails(map[string]any{"table": table, "dropped": dropped}).Wrap(err)
}

// Internal creates an unexpected error.
func Internal(message string) *Error {
	return New(ErrInternal, message)
}
