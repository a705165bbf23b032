/*
Package voucher provides the voucher catalog and the redemption workflow.

PURPOSE:
  Users exchange Compassion Points for vouchers. A redemption spans three
  entities - the voucher's stock counter, the user's balance, and the
  transaction log - plus the redemption record itself, and all four
  effects are committed as one atomic unit.

KEY CONCEPTS IN THIS FILE (types.go):
  - Voucher: Catalog item with a cost, a stock counter, and an active flag
  - Redemption: Durable record of one exchange, with a presentable code

STOCK INVARIANT:
  Stock never goes negative. The decrement is a conditional update inside
  the redemption's atomic unit, so two users racing for the last unit
  cannot both win.

SEE ALSO:
  - redeem.go: The redemption workflow
  - code.go: Redemption code generation
*/
package voucher

import "time"

// =============================================================================
// VOUCHER - Catalog item
// =============================================================================

// Voucher is a reward that can be redeemed with points.
//
// INVARIANTS:
//   - Stock >= 0 at all times
//   - Stock is decremented by exactly 1 per successful redemption and
//     never incremented by this subsystem
type Voucher struct {
	ID          string
	BrandName   string
	Title       string
	Description string
	PointsCost  int64
	Stock       int64
	IsActive    bool
	CreatedAt   time.Time
}

// Redeemable reports whether the voucher can currently be redeemed.
func (v Voucher) Redeemable() bool {
	return v.IsActive && v.Stock > 0
}

// =============================================================================
// REDEMPTION - Record of one points-for-voucher exchange
// =============================================================================

// RedemptionStatus is the lifecycle state of a redemption.
// Only issued is produced today; used and expired exist in the model but
// no code path transitions to them yet.
type RedemptionStatus string

const (
	RedemptionPending RedemptionStatus = "pending"
	RedemptionIssued  RedemptionStatus = "issued"
	RedemptionUsed    RedemptionStatus = "used"
	RedemptionExpired RedemptionStatus = "expired"
)

// ValidityWindow is how long a redemption code stays presentable at
// point of sale.
const ValidityWindow = 90 * 24 * time.Hour

// Redemption records one successful exchange.
//
// INVARIANTS:
//   - PointsSpent equals the voucher's cost at redemption time
//     (snapshotted, never recomputed)
//   - Exactly one Redemption, one negative transaction, and one stock
//     decrement exist per successful redemption
//   - Immutable after creation
type Redemption struct {
	ID             string
	UserID         string
	VoucherID      string
	PointsSpent    int64
	RedemptionCode string
	Status         RedemptionStatus
	RedeemedAt     time.Time
	ExpiresAt      time.Time
}
