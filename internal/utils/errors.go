package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures. Only KindValidation is surfaced to
// callers; the remaining kinds are absorbed with a quality signal on the
// result (lowered confidence or an omitted optional section).
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindInsufficientData   ErrorKind = "insufficient_data"
	KindModelFitting       ErrorKind = "model_fitting"
	KindExternalDependency ErrorKind = "external_dependency"
)

// AppError wraps an operation, failure kind, human-facing message, and
// underlying error.
type AppError struct {
	Op   string
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ValidationError reports bad caller input (horizon, confidence, identifiers).
func ValidationError(op, msg string) error {
	return &AppError{Op: op, Kind: KindValidation, Msg: msg}
}

// InsufficientDataError reports a history too short for the requested model.
func InsufficientDataError(op, msg string) error {
	return &AppError{Op: op, Kind: KindInsufficientData, Msg: msg}
}

// ModelFittingError reports numerical non-convergence during a fit.
func ModelFittingError(op, msg string, err error) error {
	return &AppError{Op: op, Kind: KindModelFitting, Msg: msg, Err: err}
}

// ExternalDependencyError reports a collaborator (benchmark, history feed)
// failure.
func ExternalDependencyError(op, msg string, err error) error {
	return &AppError{Op: op, Kind: KindExternalDependency, Msg: msg, Err: err}
}

// KindOf extracts the ErrorKind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsValidation reports whether err is a caller-input failure.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}
