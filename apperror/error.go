// Package apperror provides structured errors for the swap pipeline. Each
// failure stage returns a coded error so the orchestrator can pattern-match
// on the code instead of relying on opaque error strings.
package apperror

import (
	"errors"
	"fmt"
)

// AppError implements the error interface with a stable code and an
// optional wrapped cause.
type AppError struct {
	Code    Code
	Message string
	Context string
	cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches two AppErrors by code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Option is a functional option for AppError.
type Option func(*AppError)

// WithMessage overrides the default message for the code.
func WithMessage(message string) Option {
	return func(e *AppError) { e.Message = message }
}

// WithContext attaches context information.
func WithContext(context string) Option {
	return func(e *AppError) { e.Context = context }
}

// WithCause wraps an underlying error.
func WithCause(cause error) Option {
	return func(e *AppError) { e.cause = cause }
}

// New creates an AppError with the given code and options.
func New(code Code, opts ...Option) *AppError {
	err := &AppError{
		Code:    code,
		Message: messages[code],
	}
	for _, opt := range opts {
		opt(err)
	}
	if err.Message == "" {
		err.Message = string(code)
	}
	return err
}

// Wrap converts a plain error into an AppError, preserving an existing
// one's code. An already-coded error is copied before being annotated so
// shared sentinel errors are never rewritten.
func Wrap(err error, code Code, context string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if context != "" && appErr.Context == "" {
			annotated := *appErr
			annotated.Context = context
			return &annotated
		}
		return appErr
	}
	return New(code, WithContext(context), WithCause(err))
}

// GetCode extracts the error code, CodeUnknownError for plain errors.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &AppError{Code: code})
}
