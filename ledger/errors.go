/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All ledger error types in one place for consistency and discoverability.
  Domain packages (voucher, mission) reuse these where the failure is a
  ledger failure, and add their own for domain preconditions.

ERROR CATEGORIES:
  1. Validation errors - Rejected before any read or write
  2. Precondition errors - Rejected after a read, before any write
  3. Store errors - Persistence-level failures, propagated unchanged

USAGE:
  if errors.Is(err, ledger.ErrInsufficientPoints) {
      // expected, user-facing: "not enough points"
  }

SEE ALSO:
  - ledger.go: Where these errors are produced
  - store.go: Store contract that surfaces them
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when an operation receives an amount
	// outside its allowed range (non-positive for awards and deductions,
	// zero for adjustments).
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when creating a user whose ID is already
	// taken.
	ErrUserExists = errors.New("user already exists")

	// ErrInsufficientPoints is returned when a debit exceeds the current
	// balance. Expected and frequent; callers present it as validation,
	// not failure.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrStoreRequired is returned when an operation needs a store
	// capability the configured store does not provide.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError reports a balance shortage with the numbers
// needed for a user-facing message.
type InsufficientPointsError struct {
	UserID    string
	Available int64
	Requested int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}
