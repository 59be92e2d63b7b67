// Package apperr defines the error kinds every collective operation reports
// through, classifying failures the way spec.md §7 names them.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes for the error kinds named in spec.md §7.
const (
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeNotFound          = "NOT_FOUND"
	CodeSchemaMissing     = "SCHEMA_MISSING"
	CodeBadSchema         = "BAD_SCHEMA"
	CodeRangeOutOfBounds  = "RANGE_OUT_OF_BOUNDS"
	CodeTruncated         = "TRUNCATED"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeIoError           = "IO_ERROR"
	CodeCollectiveMismatch = "COLLECTIVE_MISMATCH"
)

// AppError carries a classification code, a message, and an optional
// wrapped cause.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an AppError with no wrapped cause.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a classification code and message.
func Wrap(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Wrapf wraps err with a classification code and formatted message.
func Wrapf(code string, err error, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Sentinel instances for errors.Is comparisons against a bare kind.
var (
	ErrInvalidArgument    = New(CodeInvalidArgument, "invalid argument")
	ErrNotFound           = New(CodeNotFound, "not found")
	ErrSchemaMissing      = New(CodeSchemaMissing, "schema missing")
	ErrBadSchema          = New(CodeBadSchema, "bad schema")
	ErrRangeOutOfBounds   = New(CodeRangeOutOfBounds, "range out of bounds")
	ErrTruncated          = New(CodeTruncated, "truncated")
	ErrValidationFailed   = New(CodeValidationFailed, "validation failed")
	ErrIoError            = New(CodeIoError, "io error")
	ErrCollectiveMismatch = New(CodeCollectiveMismatch, "collective mismatch")
)

// Code extracts the classification code from err, or CodeInvalidArgument's
// sibling "unknown" marker if err is not an *AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if err == nil {
		return ""
	}
	return "UNKNOWN_ERROR"
}

// IsFatal reports whether err should abort the caller's in-flight
// operation. Only RangeOutOfBounds is non-fatal per spec.md §7 — every
// other kind unwinds the collective.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code != CodeRangeOutOfBounds
	}
	return true
}
