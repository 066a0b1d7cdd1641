package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("status changed concurrently")
	ErrNotFound       = errors.New("not found")
	ErrTransientStore = errors.New("store unavailable")
	ErrUnauthorized   = errors.New("unauthorized")
)

// ValidationError describes rejected input. It matches ErrValidation under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Transient marks err as a store outage so callers can defer to the next run.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransientStore, err)
}
