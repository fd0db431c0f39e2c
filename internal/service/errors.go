package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/museum-checkout/internal/repository"
)

// Machine-checkable reason codes returned to clients alongside the HTTP
// status.  They are part of the API contract.
const (
	CodeValidation          = "validation_failed"
	CodeForbidden           = "forbidden"
	CodeInsufficient        = "insufficient"
	CodeIntegrity           = "conflict"
	CodeTransient           = "transient_failure"
	CodeNotFound            = "not_found"
	CodeUnavailable         = "unavailable"
	CodePriceMismatch       = "price_mismatch"
	CodeMembershipRequired  = "membership_required"
	CodeIdempotencyConflict = "idempotency_conflict"
)

var (
	// ErrForbidden: the caller is neither the owner of the resource nor
	// an elevated role.  Raised before any store interaction.
	ErrForbidden = errors.New("caller may not act for this user")
	// ErrNotFound: a referenced event, item or ticket type does not exist.
	// It is the repository sentinel so store lookups match it directly.
	ErrNotFound = repository.ErrNotFound
	// ErrUnavailable: the item is flagged unavailable or the event is
	// cancelled.
	ErrUnavailable = errors.New("unavailable")
	// ErrPriceMismatch: a caller supplied price or expected total differs
	// from what the server computed.
	ErrPriceMismatch = errors.New("price mismatch")
	// ErrMembershipRequired: members-only event and no active membership.
	ErrMembershipRequired = errors.New("active membership required")
	// ErrIdempotencyConflict: the Idempotency-Key already belongs to an
	// order placed by another caller or for a different request.
	ErrIdempotencyConflict = errors.New("idempotency key already used for a different request")
)

// ValidationError reports malformed or out-of-range input on one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientError is returned when a stock or capacity reservation could
// not be granted.  Remaining is the level re-read after the unit of work
// was rolled back; nil means unlimited or unknown.
type InsufficientError struct {
	Resource  string // "giftshop_item" or "event"
	ID        uint64
	Requested int
	Remaining *int
}

func (e *InsufficientError) Error() string {
	if e.Remaining == nil {
		return fmt.Sprintf("not enough %s %d for %d", e.Resource, e.ID, e.Requested)
	}
	return fmt.Sprintf("not enough %s %d for %d, remaining = %d", e.Resource, e.ID, e.Requested, *e.Remaining)
}

// IntegrityError wraps a constraint violation (duplicate key, dangling
// reference).  The unit of work was rolled back.
type IntegrityError struct{ Err error }

func (e *IntegrityError) Error() string { return "integrity violation: " + e.Err.Error() }
func (e *IntegrityError) Unwrap() error { return e.Err }

// TransientError wraps a store failure that may succeed on retry.  The
// unit of work was rolled back, so retrying with the same Idempotency-Key
// is safe.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "transient store failure: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Code returns the machine reason code for err.
func Code(err error) string {
	var (
		ve *ValidationError
		ie *InsufficientError
		ce *IntegrityError
		te *TransientError
	)
	switch {
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &ie):
		return CodeInsufficient
	case errors.As(err, &ce):
		return CodeIntegrity
	case errors.As(err, &te):
		return CodeTransient
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrPriceMismatch):
		return CodePriceMismatch
	case errors.Is(err, ErrMembershipRequired):
		return CodeMembershipRequired
	case errors.Is(err, ErrIdempotencyConflict):
		return CodeIdempotencyConflict
	}
	return ""
}
