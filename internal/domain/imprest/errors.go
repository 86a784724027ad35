package imprest

import (
	"errors"
	"fmt"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

var (
	// ErrInvalidState is returned when an operation is attempted from a status that does not allow it
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrStaleState is returned when the caller's expected version no longer matches the stored record
	ErrStaleState = errors.New("record was modified by another request")

	ErrInvalidAmount   = errors.New("invalid amount")
	ErrMissingComments = errors.New("comments are required")
	ErrMissingReason   = errors.New("reason is required")
	ErrEmptyReceipts   = errors.New("at least one receipt is required")
	ErrInvalidReceipt  = errors.New("invalid receipt")
	ErrInvalidInput    = errors.New("invalid input")

	// ErrUnauthorized means no valid authenticated identity was presented
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the caller is authenticated but lacks the role for the operation
	ErrForbidden = errors.New("forbidden")

	ErrNotFound = errors.New("imprest not found")

	// ErrIdempotencyConflict is returned when a key is reused for a different operation or record
	ErrIdempotencyConflict = errors.New("idempotency key already used for a different request")
)

// ValidationError reports a field-level input problem
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, kind error, reason string) error {
	return &ValidationError{Field: field, Reason: reason, Err: kind}
}

// Kind groups errors by how a caller should react to them
type Kind string

const (
	KindValidation   Kind = "validation"
	KindState        Kind = "state"
	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindInternal     Kind = "internal"
)

// KindOf classifies an error returned by this package or the layers above it
func KindOf(err error) Kind {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrIdempotencyConflict):
		return KindConflict
	case errors.Is(err, ErrStaleState),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrGuardFailed):
		return KindState
	default:
		return KindInternal
	}
}

// FieldOf returns the offending field of a validation error, if any
func FieldOf(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Field
	}
	return ""
}
