package models

import (
	"errors"
	"fmt"
)

// Sentinel errors. Intake rejections wrap ErrValidation as well as their
// specific sentinel so callers can match either.
var (
	ErrValidation            = errors.New("validation failed")
	ErrInvalidDuration       = errors.New("invalid duration")
	ErrUnknownProfile        = errors.New("unknown profile")
	ErrDurationExceedsLimit  = errors.New("duration exceeds profile limit")
	ErrEstimatedSizeTooLarge = errors.New("estimated size too large")
	ErrInvalidSource         = errors.New("invalid source")
	ErrQueueFull             = errors.New("queue is full")

	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// ValidationCode is the stable machine-readable reason for a rejection.
type ValidationCode string

const (
	CodeInvalidDuration       ValidationCode = "invalid_duration"
	CodeUnknownProfile        ValidationCode = "unknown_profile"
	CodeDurationExceedsLimit  ValidationCode = "duration_exceeds_limit"
	CodeEstimatedSizeTooLarge ValidationCode = "estimated_size_too_large"
	CodeInvalidSource         ValidationCode = "invalid_source"
	CodeQueueFull             ValidationCode = "queue_full"
)

// ValidationError describes why a request was rejected at intake.
type ValidationError struct {
	Code    ValidationCode
	Field   string
	Message string
	cause   error
}

// NewValidationError builds a ValidationError that unwraps to ErrValidation
// and cause.
func NewValidationError(code ValidationCode, field string, cause error, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s on field %s: %s", e.Code, e.Field, e.Message)
}

// Unwrap exposes both ErrValidation and the specific cause to errors.Is.
func (e *ValidationError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.cause}
}
