package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/goodturn/impact-engine/analytics"
	"github.com/goodturn/impact-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var now = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func credit(amount int64, at time.Time) ledger.Transaction {
	return ledger.Transaction{Amount: amount, Type: ledger.TxMissionCompletion, CreatedAt: at}
}

func debit(amount int64, at time.Time) ledger.Transaction {
	return ledger.Transaction{Amount: -amount, Type: ledger.TxVoucherRedemption, CreatedAt: at}
}

// =============================================================================
// MONTH-OVER-MONTH GROWTH
// =============================================================================

func TestGrowth_TypicalIncrease(t *testing.T) {
	// GIVEN: 200 earned in May, 300 in June
	// THEN: Growth is +50%

	txs := []ledger.Transaction{
		credit(200, time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)),
		credit(300, time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC)),
	}
	assert.InDelta(t, 50.0, analytics.MonthOverMonthGrowth(txs, now), 0.0001)
}

func TestGrowth_Decline(t *testing.T) {
	txs := []ledger.Transaction{
		credit(200, time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)),
		credit(100, time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC)),
	}
	assert.InDelta(t, -50.0, analytics.MonthOverMonthGrowth(txs, now), 0.0001)
}

func TestGrowth_NoPriorMonth_EarnedThisMonth(t *testing.T) {
	// GIVEN: Nothing earned in May, something in June
	// THEN: Growth is pinned to 100, not a division by zero

	txs := []ledger.Transaction{
		credit(50, time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC)),
	}
	assert.InDelta(t, 100.0, analytics.MonthOverMonthGrowth(txs, now), 0.0001)
}

func TestGrowth_NoActivityAtAll(t *testing.T) {
	assert.Zero(t, analytics.MonthOverMonthGrowth(nil, now))
}

func TestGrowth_DebitsIgnored(t *testing.T) {
	// GIVEN: Equal credits both months, plus a large June debit
	// THEN: Growth is 0; spending is not negative engagement

	txs := []ledger.Transaction{
		credit(200, time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)),
		credit(200, time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC)),
		debit(5000, time.Date(2025, time.June, 6, 0, 0, 0, 0, time.UTC)),
	}
	assert.InDelta(t, 0.0, analytics.MonthOverMonthGrowth(txs, now), 0.0001)
}

func TestGrowth_MonthBoundaries(t *testing.T) {
	// GIVEN: Credits exactly at the first instants of May and June, and
	//        one in April that must not count
	// THEN: Only the May and June credits are compared

	txs := []ledger.Transaction{
		credit(999, time.Date(2025, time.April, 30, 23, 59, 59, 0, time.UTC)),
		credit(100, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)),
		credit(150, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)),
	}
	assert.InDelta(t, 50.0, analytics.MonthOverMonthGrowth(txs, now), 0.0001)
}

// =============================================================================
// ENGAGEMENT SCORE
// =============================================================================

func TestMissionEngagementScore_FullMarks(t *testing.T) {
	// GIVEN: 100+ participants, 100% completion, 10000+ points
	// THEN: Every component saturates at 10; score is 10

	score := analytics.MissionEngagementScore(100, 100, 10000)
	assert.InDelta(t, 10.0, score, 0.0001)
}

func TestMissionEngagementScore_ComponentsClampIndependently(t *testing.T) {
	// GIVEN: A mission far over the participant denominator but with
	//        nothing else
	// THEN: Only the clamped participant component contributes (0.4 * 10)

	score := analytics.MissionEngagementScore(100000, 0, 0)
	assert.InDelta(t, 4.0, score, 0.0001)
}

func TestMissionEngagementScore_Weighted(t *testing.T) {
	// GIVEN: 50 participants (5.0), 50% completion (5.0), 5000 points (5.0)
	// THEN: 0.4*5 + 0.3*5 + 0.3*5 = 5.0

	score := analytics.MissionEngagementScore(50, 50, 5000)
	assert.InDelta(t, 5.0, score, 0.0001)
}

func TestMissionEngagementScore_Zero(t *testing.T) {
	assert.Zero(t, analytics.MissionEngagementScore(0, 0, 0))
}

// =============================================================================
// PROGRAM IMPACT SCORE
// =============================================================================

func TestProgramImpactScore_FullMarks(t *testing.T) {
	score := analytics.ProgramImpactScore(500, 50000, 20)
	assert.InDelta(t, 10.0, score, 0.0001)
}

func TestProgramImpactScore_Weighted(t *testing.T) {
	// GIVEN: Half of each denominator
	// THEN: Each component is 5.0; score is 5.0

	score := analytics.ProgramImpactScore(250, 25000, 10)
	assert.InDelta(t, 5.0, score, 0.0001)
}

func TestProgramImpactScore_ClampsAboveDenominators(t *testing.T) {
	score := analytics.ProgramImpactScore(5000, 500000, 200)
	assert.InDelta(t, 10.0, score, 0.0001)
}
