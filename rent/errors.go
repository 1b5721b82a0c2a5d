/*
errors.go - Centralized error types for the rent engine

ERROR CATEGORIES:
  1. Lookup errors - tenant missing or storage unreadable
  2. Validation errors - bad payment or period input
  3. Scheduling errors - a rollover period that was already processed

USAGE:
  Store implementations wrap driver errors with ErrStorageUnavailable so
  callers can classify failures without knowing the backend:

    if errors.Is(err, rent.ErrStorageUnavailable) { ... }
*/
package rent

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantNotFound is returned when a referenced tenant doesn't exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrStorageUnavailable wraps any backend failure.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidPayment is returned when a payment fails validation.
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrInvalidTenant is returned when a tenant record fails validation.
	ErrInvalidTenant = errors.New("invalid tenant")

	// ErrDuplicateIdempotencyKey is returned when a payment with the same
	// idempotency key was already recorded.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDuplicateTenantCode is returned when a tenant login code is taken.
	ErrDuplicateTenantCode = errors.New("duplicate tenant code")

	// ErrPeriodAlreadyRolledOver is returned when a rollover for the period
	// is running or has completed. The rollover is not idempotent, so a
	// second run must be refused.
	ErrPeriodAlreadyRolledOver = errors.New("period already rolled over")

	// ErrInvalidPeriod is returned for a malformed "YYYY-MM" period key.
	ErrInvalidPeriod = errors.New("invalid period")
)

// ValidationError carries the offending field.
type ValidationError struct {
	Kind    error // ErrInvalidPayment or ErrInvalidTenant
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func invalidPayment(field, msg string) error {
	return &ValidationError{Kind: ErrInvalidPayment, Field: field, Message: msg}
}

func invalidTenant(field, msg string) error {
	return &ValidationError{Kind: ErrInvalidTenant, Field: field, Message: msg}
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPayment) ||
		errors.Is(err, ErrInvalidTenant) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict returns true if the request clashes with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrDuplicateTenantCode) ||
		errors.Is(err, ErrPeriodAlreadyRolledOver)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound)
}
