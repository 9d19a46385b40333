/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is / errors.As; the HTTP layer
  maps the categories to status codes.

ERROR CATEGORIES:
  1. InvalidInput - malformed or missing fields, reported before any store access
  2. InsufficientBalance - consumption exceeds the summed remaining of eligible grants
  3. StoreFailure - the persistence layer failed
  4. Not found - referenced employee/grant/request does not exist

  A duplicate automated accrual is NOT an error: the accrual job skips it.

USAGE:
  var insufficient *generic.InsufficientBalanceError
  if errors.As(err, &insufficient) {
      log.Printf("short by %s days", insufficient.Shortfall)
  }

SEE ALSO:
  - timeoff/allocator.go: returns InsufficientBalanceError
  - api/handlers.go: maps errors to HTTP status
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for malformed or missing request fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientBalance is returned when consumption exceeds available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrStoreFailure wraps failures of the underlying persistence layer.
	ErrStoreFailure = errors.New("store failure")

	ErrEmployeeNotFound = errors.New("employee not found")
	ErrGrantNotFound    = errors.New("grant not found")
	ErrRequestNotFound  = errors.New("request not found")

	// ErrRequestFinalized is returned when changing the status of an
	// approved or rejected request.
	ErrRequestFinalized = errors.New("request already finalized")

	// ErrDuplicateGrant is returned when an automated grant already exists
	// for the same employee and valid-from date.
	ErrDuplicateGrant = errors.New("duplicate automated grant")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid builds an InvalidInputError.
func Invalid(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID EmployeeID
	Available  decimal.Decimal
	Requested  decimal.Decimal
	Shortfall  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// StoreFailure marks err as a persistence failure. Already classified
// errors (nil, not found, finalized) pass through unchanged.
func StoreFailure(err error) error {
	if err == nil || errors.Is(err, ErrStoreFailure) || IsNotFound(err) || errors.Is(err, ErrRequestFinalized) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreFailure, err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrRequestFinalized)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrGrantNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}
