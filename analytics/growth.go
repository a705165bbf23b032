/*
Package analytics provides presentation-only derivations over ledger and
mission data.

PURPOSE:
  Pure, stateless functions: month-over-month growth from a user's
  transaction history, and the composite engagement/impact scores shown
  on mission and sponsor dashboards. Nothing here persists state or
  mutates anything.

PRECISION:
  Intermediate arithmetic uses decimal.Decimal; results are emitted as
  float64 for display.

SEE ALSO:
  - score.go: Engagement and impact scores
  - ledger/: Transaction source for growth
*/
package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/goodturn/impact-engine/ledger"
)

// =============================================================================
// MONTH-OVER-MONTH GROWTH
// =============================================================================

// MonthOverMonthGrowth computes the earning-velocity growth percentage
// for the calendar month containing now versus the month before it.
//
// Only credits count: debits reflect spending, not engagement. With no
// prior-month earnings the result is 100 if anything was earned this
// month and 0 otherwise.
func MonthOverMonthGrowth(txs []ledger.Transaction, now time.Time) float64 {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prevStart := monthStart.AddDate(0, -1, 0)
	nextStart := monthStart.AddDate(0, 1, 0)

	var current, previous int64
	for _, tx := range txs {
		if !tx.IsCredit() {
			continue
		}
		at := tx.CreatedAt.In(now.Location())
		switch {
		case !at.Before(monthStart) && at.Before(nextStart):
			current += tx.Amount
		case !at.Before(prevStart) && at.Before(monthStart):
			previous += tx.Amount
		}
	}

	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}

	growth := decimal.NewFromInt(current - previous).
		Div(decimal.NewFromInt(previous)).
		Mul(decimal.NewFromInt(100))
	f, _ := growth.Float64()
	return f
}
