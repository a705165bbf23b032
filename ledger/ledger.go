/*
ledger.go - The four mutating ledger operations

PURPOSE:
  Implements award-for-mission, deduct-for-voucher, award-bonus, and
  adjust. Each operation validates its input, then commits exactly one
  transaction record and one signed balance increment as a single atomic
  unit. No partial state is ever observable.

CONTRACT (all four operations):
  Input:      userID, amount, description, plus an operation-specific
              related ID where applicable
  Validation: awards and deductions require amount > 0; adjust requires
              amount != 0 (adjust is the only operation allowed to reduce
              a balance outside of voucher redemption)
  Effect:     one Transaction appended with the correctly signed amount,
              and the balance incremented by that same amount, atomically
  Result:     the created Transaction with assigned ID and timestamp

FAILURE SEMANTICS:
  Validation failures abort before any read or write. Precondition
  failures (user missing, insufficient points) abort inside the atomic
  unit, before commit. Store failures roll back everything and propagate
  unchanged; no retry is attempted here.

SEE ALSO:
  - store.go: The atomic-unit primitive (WithTx)
  - voucher/redeem.go: Composes a ledger mutation with inventory writes
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER - Operations on a user's point balance
// =============================================================================

// Ledger applies point movements to user balances.
// Construct once and inject; it holds no state beyond the store.
type Ledger struct {
	store TxStore
	now   func() time.Time
}

// NewLedger creates a ledger backed by the given store.
func NewLedger(store TxStore) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// AwardForMission credits points for a completed mission.
func (l *Ledger) AwardForMission(ctx context.Context, userID, missionID string, amount int64, description string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	return l.commit(ctx, Mutation{
		UserID:      userID,
		Amount:      amount,
		Type:        TxMissionCompletion,
		RelatedID:   missionID,
		Description: description,
	})
}

// DeductForVoucher debits points for a voucher redemption.
// Fails with ErrUserNotFound if the user does not exist and with an
// *InsufficientPointsError if the balance cannot cover the deduction.
func (l *Ledger) DeductForVoucher(ctx context.Context, userID, voucherID string, amount int64, description string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	return l.commit(ctx, Mutation{
		UserID:      userID,
		Amount:      -amount,
		Type:        TxVoucherRedemption,
		RelatedID:   voucherID,
		Description: description,
	})
}

// AwardBonus credits points outside of any mission (campaigns, referrals).
func (l *Ledger) AwardBonus(ctx context.Context, userID string, amount int64, description string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	return l.commit(ctx, Mutation{
		UserID:      userID,
		Amount:      amount,
		Type:        TxBonus,
		Description: description,
	})
}

// Adjust applies a manual admin correction of either sign.
// Zero adjustments are rejected. A negative adjustment may not drive the
// balance below zero.
func (l *Ledger) Adjust(ctx context.Context, userID string, amount int64, description string) (Transaction, error) {
	if amount == 0 {
		return Transaction{}, ErrInvalidAmount
	}
	return l.commit(ctx, Mutation{
		UserID:      userID,
		Amount:      amount,
		Type:        TxAdjustment,
		Description: description,
	})
}

// Balance returns the user's current point balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u == nil {
		return 0, ErrUserNotFound
	}
	return u.CompassionPoints, nil
}

// History returns up to limit transactions for the user, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	return l.store.Transactions(ctx, userID, limit)
}

func (l *Ledger) commit(ctx context.Context, m Mutation) (Transaction, error) {
	var created Transaction
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		created, err = Apply(ctx, s, m, l.now())
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return created, nil
}

// =============================================================================
// MUTATION - A validated ledger write, usable inside larger atomic units
// =============================================================================

// Mutation is one signed balance change with its cause. Amount carries
// the final sign: negative for debits.
type Mutation struct {
	UserID      string
	Amount      int64
	Type        TransactionType
	RelatedID   string
	Description string
}

// Apply records the mutation against s: one balance increment plus one
// transaction append. Callers that combine a ledger write with other
// writes (the redemption workflow, mission completion) call Apply with
// the Store handed to them by WithTx so everything commits together.
func Apply(ctx context.Context, s Store, m Mutation, at time.Time) (Transaction, error) {
	if _, err := s.ApplyDelta(ctx, m.UserID, m.Amount); err != nil {
		return Transaction{}, err
	}

	tx := Transaction{
		ID:          uuid.NewString(),
		UserID:      m.UserID,
		Amount:      m.Amount,
		Type:        m.Type,
		RelatedID:   m.RelatedID,
		Description: m.Description,
		CreatedAt:   at.UTC(),
	}
	if err := s.Append(ctx, tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}
