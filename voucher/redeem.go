/*
redeem.go - The voucher redemption workflow

PURPOSE:
  Exchanges points for a voucher as one indivisible action. A successful
  redemption produces exactly four effects, all-or-nothing:
    1. A Redemption record with status issued and a fresh code
    2. The voucher's stock decremented by exactly 1
    3. The user's balance decremented by the voucher's cost
    4. A negative voucher_redemption transaction in the ledger

PRECONDITIONS (checked in order, inside the atomic unit):
  1. Voucher exists            -> ErrVoucherNotFound
  2. Voucher is active         -> ErrVoucherInactive
  3. Stock > 0                 -> *OutOfStockError
  4. Balance >= cost           -> *ledger.InsufficientPointsError

CONSISTENCY:
  The voucher and the balance are both re-read and guarded inside the
  same store transaction. The workflow never trusts a caller-supplied
  balance or a previously fetched stock count, so there is no
  check-then-act window between two concurrent redemptions.

SEE ALSO:
  - types.go: Voucher and Redemption
  - ledger/ledger.go: Apply, the composable ledger mutation
*/
package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goodturn/impact-engine/ledger"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrVoucherNotFound is returned when the referenced voucher does not exist.
	ErrVoucherNotFound = errors.New("voucher not found")

	// ErrVoucherInactive is returned when the voucher exists but is not
	// visible for redemption.
	ErrVoucherInactive = errors.New("voucher inactive")

	// ErrOutOfStock is returned when the voucher has no stock left.
	// Expected and frequent; callers present it as validation, not failure.
	ErrOutOfStock = errors.New("voucher out of stock")
)

// OutOfStockError reports stock exhaustion for a specific voucher.
type OutOfStockError struct {
	VoucherID string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("voucher %s out of stock", e.VoucherID)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// =============================================================================
// STORE - Persistence interface for vouchers and redemptions
// =============================================================================

// Store extends the ledger store with voucher inventory and redemption
// records. Redemptions are append-only: created once, never mutated.
type Store interface {
	ledger.Store

	// SaveVoucher inserts or updates a catalog entry.
	SaveVoucher(ctx context.Context, v Voucher) error

	// GetVoucher returns the voucher, or nil if it does not exist.
	GetVoucher(ctx context.Context, id string) (*Voucher, error)

	// ListVouchers returns catalog entries. With redeemableOnly, only
	// active vouchers with stock remaining are returned.
	ListVouchers(ctx context.Context, redeemableOnly bool) ([]Voucher, error)

	// DecrementStock decrements the voucher's stock by exactly 1,
	// guarded so stock never goes negative. Fails with an
	// *OutOfStockError when no stock remains.
	DecrementStock(ctx context.Context, voucherID string) error

	// SaveRedemption inserts a redemption record.
	SaveRedemption(ctx context.Context, r Redemption) error

	// RedemptionsByUser returns the user's redemptions, newest first.
	RedemptionsByUser(ctx context.Context, userID string) ([]Redemption, error)
}

// TxStore is a Store whose WithTx hands out stores implementing Store.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(ledger.Store) error) error
}

// =============================================================================
// REDEEMER - The workflow coordinator
// =============================================================================

// Redeemer executes redemptions. Construct once and inject.
type Redeemer struct {
	store TxStore
	now   func() time.Time
	code  func(time.Time) string
}

// NewRedeemer creates a redemption workflow backed by the given store.
func NewRedeemer(store TxStore) *Redeemer {
	return &Redeemer{store: store, now: time.Now, code: NewCode}
}

// Redeem exchanges points for the voucher. On success it returns the
// created Redemption and a voucher snapshot with the decrement applied.
func (r *Redeemer) Redeem(ctx context.Context, userID, voucherID string) (*Redemption, *Voucher, error) {
	var (
		red  Redemption
		snap Voucher
	)

	err := r.store.WithTx(ctx, func(ls ledger.Store) error {
		s, ok := ls.(Store)
		if !ok {
			return ledger.ErrStoreRequired
		}

		v, err := s.GetVoucher(ctx, voucherID)
		if err != nil {
			return err
		}
		if v == nil {
			return ErrVoucherNotFound
		}
		if !v.IsActive {
			return ErrVoucherInactive
		}
		if v.Stock <= 0 {
			return &OutOfStockError{VoucherID: voucherID}
		}

		// Conditional decrement: the guard re-fires here even if another
		// redemption won the race after the read above.
		if err := s.DecrementStock(ctx, voucherID); err != nil {
			return err
		}

		now := r.now().UTC()
		if _, err := ledger.Apply(ctx, s, ledger.Mutation{
			UserID:      userID,
			Amount:      -v.PointsCost,
			Type:        ledger.TxVoucherRedemption,
			RelatedID:   voucherID,
			Description: fmt.Sprintf("Redeemed %s - %s", v.BrandName, v.Title),
		}, now); err != nil {
			return err
		}

		red = Redemption{
			ID:             uuid.NewString(),
			UserID:         userID,
			VoucherID:      voucherID,
			PointsSpent:    v.PointsCost,
			RedemptionCode: r.code(now),
			Status:         RedemptionIssued,
			RedeemedAt:     now,
			ExpiresAt:      now.Add(ValidityWindow),
		}
		if err := s.SaveRedemption(ctx, red); err != nil {
			return err
		}

		snap = *v
		snap.Stock--
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &red, &snap, nil
}

// Redemptions returns the user's redemption history, newest first.
func (r *Redeemer) Redemptions(ctx context.Context, userID string) ([]Redemption, error) {
	return r.store.RedemptionsByUser(ctx, userID)
}
