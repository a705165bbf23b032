package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goodturn/impact-engine/ledger"
	"github.com/goodturn/impact-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*ledger.Ledger, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ledger.NewLedger(store), store
}

func createUser(t *testing.T, store *sqlite.Store, id string) {
	t.Helper()
	err := store.CreateUser(context.Background(), ledger.User{ID: id, Name: "Test User"})
	require.NoError(t, err)
}

// =============================================================================
// AWARD TESTS
// =============================================================================

func TestLedger_AwardForMission_CreditsBalanceAndAppendsTransaction(t *testing.T) {
	// GIVEN: A user with a zero balance
	// WHEN: Awarding 250 points for a mission
	// THEN: Balance is 250 and exactly one mission_completion transaction exists

	led, store := newTestLedger(t)
	ctx := context.Background()
	createUser(t, store, "user-1")

	tx, err := led.AwardForMission(ctx, "user-1", "mission-42", 250, "Beach cleanup")
	require.NoError(t, err)

	assert.Equal(t, int64(250), tx.Amount)
	assert.Equal(t, ledger.TxMissionCompletion, tx.Type)
	assert.Equal(t, "mission-42", tx.RelatedID)
	assert.NotEmpty(t, tx.ID)

	balance, err := led.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance)

	history, err := led.History(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, tx.ID, history[0].ID)
}

func TestLedger_AwardBonus_NoRelatedID(t *testing.T) {
	// GIVEN: A user
	// WHEN: Awarding a bonus
	// THEN: The transaction has type bonus and no related ID

	led, store := newTestLedger(t)
	ctx := context.Background()
	createUser(t, store, "user-1")

	tx, err := led.AwardBonus(ctx, "user-1", 100, "Referral campaign")
	require.NoError(t, err)

	assert.Equal(t, ledger.TxBonus, tx.Type)
	assert.Empty(t, tx.RelatedID)
	assert.Equal(t, int64(100), tx.Amount)
}

func TestLedger_Award_NonPositiveAmount_Rejected(t *testing.T) {
	// GIVEN: A user
	// WHEN: Awarding zero or negative amounts
	// THEN: ErrInvalidAmount, and nothing is written

	led, store := newTestLedger(t)
	ctx := context.Background()
	createUser(t, store, "user-1")

	_, err := led.AwardForMission(ctx, "user-1", "m-1", 0, "zero")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = led.AwardForMission(ctx, "user-1", "m-1", -50, "negative")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = led.AwardBonus(ctx, "user-1", -1, "negative bonus")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	history, err := led.History(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLedger_Award_UnknownUser_Rejected(t *testing.T) {
	// GIVEN: No user
	// WHEN: Awarding points
	// THEN: ErrUserNotFound

	led, _ := newTestLedger(t)

	_, err := led.AwardForMission(context.Background(), "ghost", "m-1", 100, "test")
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}

// =============================================================================
// DEDUCTION TESTS
// =============================================================================

func TestLedger_DeductForVoucher_DebitsBalance(t *testing.T) {
	// GIVEN: A user with 500 points
	// WHEN: Deducting 300 for a voucher
	// THEN: Balance is 200 and the transaction amount is -300

	led, store := newTestLedger(t)
	ctx := context.Background()
	createUser(t, store, "user-1")
	_, err := led.AwardBonus(ctx, "user-1", 500, "seed")
	require.NoError(t, err)

	tx, err := led.DeductForVoucher(ctx, "user-1", "voucher-7", 300, "Coffee voucher")
	require.NoError(t, err)

	assert.Equal(t, int64(-300), tx.Amount)
	assert.Equal(t, ledger.TxVoucherRedemption, tx.Type)
	assert.False(t, tx.IsCredit())

	balance, err := led.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance)
}

func TestLedger_DeductForVoucher_InsufficientPoints_Rejected(t *testing.T) {
	// GIVEN: A user with 100 points
	// WHEN: Deducting 300
	// THEN: InsufficientPointsError with the shortfall numbers, balance unchanged

	led, store := newTestLedger(t)
	ctx := context.Background()
	createUser(t, store, "user-1")
	_, err := led.AwardBonus(ctx, "user-1", 100, "seed")
	require.NoError(t, err)

	_, err = led.DeductForVoucher(ctx, "user-1", "voucher-7", 300, "too expensive")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientPoints)

	var insufficientErr *ledger.InsufficientPointsError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, int64(100), insufficientErr.Available)
	assert.Equal(t, int64(300), insufficientErr.Requested)

	balance, err := led.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	// The failed deduction left no ledger entry.
	history, err := led.History(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// =============================================================================
// ADJUSTMENT TESTS
// =============================================================================

func TestLedger_Adjust_EitherSign(t *testing.T) {
	// GIVEN: A user with 500 points
	// WHEN: Adjusting +50 then -100
	// THEN: Balance is 450, both adjustments recorded

	led, store := newTestLedger(t)
	ctx := context.Background()
	createUser(t, store, "user-1")
	_, err := led.AwardBonus(ctx, "user-1", 500, "seed")
	require.NoError(t, err)

	_, err = led.Adjust(ctx, "user-1", 50, "support credit")
	require.NoError(t, err)

	tx, err := led.Adjust(ctx, "user-1", -100, "duplicate award correction")
	require.NoError(t, err)
	assert.Equal(t, int64(-100), tx.Amount)
	assert.Equal(t, ledger.TxAdjustment, tx.Type)

	balance, err := led.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(450), balance)
}

func TestLedger_Adjust_Zero_Rejected(t *testing.T) {
	led, store := newTestLedger(t)
	createUser(t, store, "user-1")

	_, err := led.Adjust(context.Background(), "user-1", 0, "no-op")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestLedger_Adjust_CannotDriveBalanceNegative(t *testing.T) {
	// GIVEN: A user with 100 points
	// WHEN: Adjusting -200
	// THEN: Rejected with insufficient points, balance unchanged

	led, store := newTestLedger(t)
	ctx := context.Background()
	createUser(t, store, "user-1")
	_, err := led.AwardBonus(ctx, "user-1", 100, "seed")
	require.NoError(t, err)

	_, err = led.Adjust(ctx, "user-1", -200, "overcorrection")
	assert.ErrorIs(t, err, ledger.ErrInsufficientPoints)

	balance, err := led.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

// =============================================================================
// BALANCE/LEDGER CONSISTENCY
// =============================================================================

func TestLedger_BalanceEqualsSumOfTransactions(t *testing.T) {
	// GIVEN: A mixed sequence of awards, deductions, and adjustments
	// THEN: The balance equals the sum of all transaction amounts

	led, store := newTestLedger(t)
	ctx := context.Background()
	createUser(t, store, "user-1")

	_, err := led.AwardForMission(ctx, "user-1", "m-1", 300, "cleanup")
	require.NoError(t, err)
	_, err = led.AwardBonus(ctx, "user-1", 120, "campaign")
	require.NoError(t, err)
	_, err = led.DeductForVoucher(ctx, "user-1", "v-1", 150, "coffee")
	require.NoError(t, err)
	_, err = led.Adjust(ctx, "user-1", -20, "correction")
	require.NoError(t, err)

	history, err := led.History(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 4)

	var sum int64
	for _, tx := range history {
		sum += tx.Amount
	}

	balance, err := led.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, sum, balance)
	assert.Equal(t, int64(250), balance)
}

func TestLedger_History_NewestFirstWithLimit(t *testing.T) {
	// GIVEN: Three transactions
	// WHEN: Fetching history with limit 2
	// THEN: The two most recent come back, newest first

	led, store := newTestLedger(t)
	ctx := context.Background()
	createUser(t, store, "user-1")

	_, err := led.AwardBonus(ctx, "user-1", 10, "first")
	require.NoError(t, err)
	_, err = led.AwardBonus(ctx, "user-1", 20, "second")
	require.NoError(t, err)
	_, err = led.AwardBonus(ctx, "user-1", 30, "third")
	require.NoError(t, err)

	history, err := led.History(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "third", history[0].Description)
	assert.Equal(t, "second", history[1].Description)
}

func TestLedger_Balance_UnknownUser(t *testing.T) {
	led, _ := newTestLedger(t)

	_, err := led.Balance(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}
