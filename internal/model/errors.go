package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAlreadyCompleted    = errors.New("run is already completed")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrExternalService     = errors.New("external service failure")
	ErrLedgerCorrupted     = errors.New("ledger corrupted")
)

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ForbiddenError is a rule violation by an actor related to the resource.
// WindowExpiresAt is set when the rule is a time window.
type ForbiddenError struct {
	Reason          string
	WindowExpiresAt *time.Time
}

func (e *ForbiddenError) Error() string { return e.Reason }

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// Forbidden is shorthand for a *ForbiddenError without a window.
func Forbidden(reason string) error {
	return &ForbiddenError{Reason: reason}
}

// InsufficientStockError is returned when a reservation exceeds the remaining slots.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available, %d requested", e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InvalidTransitionError is returned when a run status would move backwards.
type InvalidTransitionError struct {
	Current   RunStatus
	Attempted RunStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move run from %s to %s", e.Current, e.Attempted)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }
