/*
store.go - Persistence interfaces for users and transactions

PURPOSE:
  Defines the interface between the ledger and the database. The Store
  keeps the transaction log append-only and guards the balance counter
  so it can never go negative, even under concurrent callers.

KEY INTERFACES:
  Store:   User and transaction persistence
  TxStore: Store plus WithTx for atomic multi-write units

APPEND-ONLY CONTRACT:
  - Append(): Single transaction write
  - NO Update() or Delete() methods exist for transactions

CONDITIONAL BALANCE UPDATES:
  ApplyDelta is the only way to change a balance. Implementations apply
  the increment as a conditional update (the balance must stay >= 0) in
  the store itself, not as a client-side read-then-write pair. Two
  concurrent debits racing for the same points cannot both succeed.

ATOMIC UNITS:
  WithTx() ensures all-or-nothing semantics. A ledger operation is one
  ApplyDelta plus one Append; a voucher redemption adds a stock decrement
  and a redemption insert on top. Either every write lands or none do.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - store/memory: In-memory for testing, with fault injection

SEE ALSO:
  - ledger.go: Operations built on these interfaces
  - store/sqlite/sqlite.go: Concrete implementation
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - User and transaction persistence
// =============================================================================

// Store handles persistence of users and ledger transactions.
// The transactions side is APPEND-ONLY: no update, no delete.
type Store interface {
	// CreateUser inserts a new user. The balance starts at zero
	// regardless of the value in u.
	CreateUser(ctx context.Context, u User) error

	// GetUser returns the user, or nil if it does not exist.
	GetUser(ctx context.Context, id string) (*User, error)

	// ApplyDelta atomically increments the user's balance by delta
	// (which may be negative) and returns the new balance.
	// Fails with ErrUserNotFound if the user does not exist, and with
	// an *InsufficientPointsError if the result would be negative.
	// The guard is applied inside the store, never by the caller.
	ApplyDelta(ctx context.Context, userID string, delta int64) (int64, error)

	// Append persists a transaction. This is the ONLY write operation
	// on the transaction log.
	Append(ctx context.Context, tx Transaction) error

	// Transactions returns up to limit transactions for the user,
	// newest first. limit <= 0 means no limit.
	Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error)

	// TransactionsSince returns the user's transactions created at or
	// after since, newest first.
	TransactionsSince(ctx context.Context, userID string, since time.Time) ([]Transaction, error)

	// TopUsers returns up to limit users ordered by balance, highest
	// first. Backs the leaderboard.
	TopUsers(ctx context.Context, limit int) ([]User, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
//
// The Store passed to fn may implement extended interfaces
// (voucher.Store, mission.Store); callers that need those capabilities
// type-assert and fail with ErrStoreRequired if unavailable.
type TxStore interface {
	Store

	// WithTx executes fn within one atomic unit.
	// If fn returns an error, every write made through its Store is
	// rolled back; otherwise all are committed together.
	WithTx(ctx context.Context, fn func(Store) error) error
}
