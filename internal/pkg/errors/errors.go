package errors

import (
	"errors"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalid             = errors.New("invalid")
	ErrConflict            = errors.New("conflict")
	ErrInternal            = errors.New("internal")
	ErrInvalidArchive      = errors.New("invalid archive")
	ErrVersionMismatch     = errors.New("export version mismatch")
	ErrValidation          = errors.New("validation failed")
	ErrFileTooLarge        = errors.New("file too large")
	ErrUnsupportedSource   = errors.New("unsupported import source")
	ErrJobTerminal         = errors.New("job already finished")
	ErrJobCancelled        = errors.New("job cancelled")
	ErrChecksumMismatch    = errors.New("checksum does not match content")
	ErrRefCountUnavailable = errors.New("reference count source unavailable")
)

// ValidationError lists every rule a payload violated.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(violations ...string) error {
	return &ValidationError{Violations: violations}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidArchive(err error) bool {
	return errors.Is(err, ErrInvalidArchive)
}
