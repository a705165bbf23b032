/*
Package ledger provides the points ledger at the core of the impact engine.

PURPOSE:
  This package contains the types and operations for managing Compassion
  Points: the append-only transaction log, the per-user balance, and the
  four mutating operations that keep them consistent.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: Account holding the current point balance
  - Transaction: An immutable ledger entry recording a balance change
  - TransactionType: Closed set of causes for a balance change

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified or deleted
  2. Single write path: The balance changes only through ledger operations
  3. Dual-write consistency: Every balance change has exactly one
     transaction record, committed in the same atomic unit
  4. Auditability: Every transaction carries a cause, a reference, and a
     human-readable description

USAGE:
  led := ledger.NewLedger(store)
  tx, err := led.AwardForMission(ctx, "user-1", "mission-42", 250, "Beach cleanup")

SEE ALSO:
  - ledger.go: The four mutating operations
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package ledger

import "time"

// =============================================================================
// USER - Account with a point balance
// =============================================================================

// User is an account holding Compassion Points.
// CompassionPoints is mutated only through ledger operations and always
// equals the sum of the user's transaction amounts.
type User struct {
	ID               string
	Name             string
	Email            string
	CompassionPoints int64
	CreatedAt        time.Time
}

// =============================================================================
// TRANSACTION - Atomic change to a user's balance
// =============================================================================

// TransactionType is the cause of a balance change.
// This is a closed set: new causes require a code change, not configuration.
type TransactionType string

const (
	TxMissionCompletion TransactionType = "mission_completion" // Credit for completing a mission
	TxVoucherRedemption TransactionType = "voucher_redemption" // Debit for redeeming a voucher
	TxBonus             TransactionType = "bonus"              // One-off credit (campaigns, referrals)
	TxAdjustment        TransactionType = "adjustment"         // Manual admin correction, either sign
)

// Transaction is one signed point movement on a user's balance.
//
// INVARIANTS:
//   - Immutable once created. Corrections are new adjustment transactions.
//   - Amount is positive for credits, negative for debits.
//   - RelatedID references the mission or voucher that caused the movement;
//     empty for bonus and adjustment.
type Transaction struct {
	ID          string
	UserID      string
	Amount      int64
	Type        TransactionType
	RelatedID   string
	Description string
	CreatedAt   time.Time
}

// IsCredit reports whether the transaction added points.
func (t Transaction) IsCredit() bool { return t.Amount > 0 }
