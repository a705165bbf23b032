/*
Package memory provides an in-memory implementation of the storage
interfaces, for tests and local development.

PURPOSE:
  Same contracts as store/sqlite, no database. WithTx is simulated with
  a deep snapshot taken before the unit runs and restored if it fails,
  which makes the all-or-nothing behavior of multi-write workflows
  observable in tests.

FAULT INJECTION:
  FailOn arms a one-shot error for a named write operation, so a test
  can make the Nth effect of a workflow fail and then assert that the
  earlier effects were rolled back.

SEE ALSO:
  - ledger/store.go: Interface definitions and the ApplyDelta contract
  - store/sqlite: Production implementation
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goodturn/impact-engine/ledger"
	"github.com/goodturn/impact-engine/mission"
	"github.com/goodturn/impact-engine/voucher"
)

// Memory implements all storage interfaces in memory.
type Memory struct {
	mu sync.RWMutex

	users        map[string]ledger.User
	transactions map[string][]ledger.Transaction // per user, append order
	vouchers     map[string]voucher.Voucher
	redemptions  map[string][]voucher.Redemption
	codes        map[string]bool
	missions     map[string]mission.Mission
	participants map[participantKey]mission.Participant

	faultOp  string
	faultErr error
}

type participantKey struct {
	MissionID string
	UserID    string
}

// Interface conformance.
var (
	_ ledger.TxStore  = (*Memory)(nil)
	_ voucher.TxStore = (*Memory)(nil)
	_ mission.TxStore = (*Memory)(nil)
)

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{
		users:        make(map[string]ledger.User),
		transactions: make(map[string][]ledger.Transaction),
		vouchers:     make(map[string]voucher.Voucher),
		redemptions:  make(map[string][]voucher.Redemption),
		codes:        make(map[string]bool),
		missions:     make(map[string]mission.Mission),
		participants: make(map[participantKey]mission.Participant),
	}
}

// FailOn arms a one-shot failure: the next call to the named write
// operation returns err instead of writing.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faultOp = op
	m.faultErr = err
}

func (m *Memory) takeFault(op string) error {
	if m.faultOp == op && m.faultErr != nil {
		err := m.faultErr
		m.faultOp = ""
		m.faultErr = nil
		return err
	}
	return nil
}

// =============================================================================
// USER STORE (ledger.Store interface)
// =============================================================================

func (m *Memory) CreateUser(_ context.Context, u ledger.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createUserLocked(u)
}

func (m *Memory) createUserLocked(u ledger.User) error {
	if err := m.takeFault("CreateUser"); err != nil {
		return err
	}
	if _, ok := m.users[u.ID]; ok {
		return ledger.ErrUserExists
	}
	u.CompassionPoints = 0
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id)
}

func (m *Memory) getUserLocked(id string) (*ledger.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) ApplyDelta(_ context.Context, userID string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyDeltaLocked(userID, delta)
}

func (m *Memory) applyDeltaLocked(userID string, delta int64) (int64, error) {
	if err := m.takeFault("ApplyDelta"); err != nil {
		return 0, err
	}
	u, ok := m.users[userID]
	if !ok {
		return 0, ledger.ErrUserNotFound
	}
	if u.CompassionPoints+delta < 0 {
		return 0, &ledger.InsufficientPointsError{
			UserID:    userID,
			Available: u.CompassionPoints,
			Requested: -delta,
		}
	}
	u.CompassionPoints += delta
	m.users[userID] = u
	return u.CompassionPoints, nil
}

func (m *Memory) TopUsers(_ context.Context, limit int) ([]ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.topUsersLocked(limit)
}

func (m *Memory) topUsersLocked(limit int) ([]ledger.User, error) {
	users := make([]ledger.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CompassionPoints != users[j].CompassionPoints {
			return users[i].CompassionPoints > users[j].CompassionPoints
		}
		return users[i].ID < users[j].ID
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// =============================================================================
// TRANSACTION STORE (ledger.Store interface)
// =============================================================================

func (m *Memory) Append(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx ledger.Transaction) error {
	if err := m.takeFault("Append"); err != nil {
		return err
	}
	m.transactions[tx.UserID] = append(m.transactions[tx.UserID], tx)
	return nil
}

func (m *Memory) Transactions(_ context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transactionsLocked(userID, limit)
}

func (m *Memory) transactionsLocked(userID string, limit int) ([]ledger.Transaction, error) {
	stored := m.transactions[userID]

	// Stored in append order; returned newest first.
	result := make([]ledger.Transaction, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		result = append(result, stored[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *Memory) TransactionsSince(_ context.Context, userID string, since time.Time) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transactionsSinceLocked(userID, since)
}

func (m *Memory) transactionsSinceLocked(userID string, since time.Time) ([]ledger.Transaction, error) {
	stored := m.transactions[userID]
	var result []ledger.Transaction
	for i := len(stored) - 1; i >= 0; i-- {
		if !stored[i].CreatedAt.Before(since) {
			result = append(result, stored[i])
		}
	}
	return result, nil
}

// =============================================================================
// VOUCHER STORE (voucher.Store interface)
// =============================================================================

func (m *Memory) SaveVoucher(_ context.Context, v voucher.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveVoucherLocked(v)
}

func (m *Memory) saveVoucherLocked(v voucher.Voucher) error {
	if err := m.takeFault("SaveVoucher"); err != nil {
		return err
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	m.vouchers[v.ID] = v
	return nil
}

func (m *Memory) GetVoucher(_ context.Context, id string) (*voucher.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getVoucherLocked(id)
}

func (m *Memory) getVoucherLocked(id string) (*voucher.Voucher, error) {
	v, ok := m.vouchers[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *Memory) ListVouchers(_ context.Context, redeemableOnly bool) ([]voucher.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listVouchersLocked(redeemableOnly)
}

func (m *Memory) listVouchersLocked(redeemableOnly bool) ([]voucher.Voucher, error) {
	var result []voucher.Voucher
	for _, v := range m.vouchers {
		if redeemableOnly && !v.Redeemable() {
			continue
		}
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].BrandName != result[j].BrandName {
			return result[i].BrandName < result[j].BrandName
		}
		return result[i].Title < result[j].Title
	})
	return result, nil
}

func (m *Memory) DecrementStock(_ context.Context, voucherID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decrementStockLocked(voucherID)
}

func (m *Memory) decrementStockLocked(voucherID string) error {
	if err := m.takeFault("DecrementStock"); err != nil {
		return err
	}
	v, ok := m.vouchers[voucherID]
	if !ok {
		return voucher.ErrVoucherNotFound
	}
	if v.Stock <= 0 {
		return &voucher.OutOfStockError{VoucherID: voucherID}
	}
	v.Stock--
	m.vouchers[voucherID] = v
	return nil
}

func (m *Memory) SaveRedemption(_ context.Context, r voucher.Redemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRedemptionLocked(r)
}

func (m *Memory) saveRedemptionLocked(r voucher.Redemption) error {
	if err := m.takeFault("SaveRedemption"); err != nil {
		return err
	}
	m.redemptions[r.UserID] = append(m.redemptions[r.UserID], r)
	m.codes[r.RedemptionCode] = true
	return nil
}

func (m *Memory) RedemptionsByUser(_ context.Context, userID string) ([]voucher.Redemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.redemptionsByUserLocked(userID)
}

func (m *Memory) redemptionsByUserLocked(userID string) ([]voucher.Redemption, error) {
	stored := m.redemptions[userID]
	result := make([]voucher.Redemption, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		result = append(result, stored[i])
	}
	return result, nil
}

// =============================================================================
// MISSION STORE (mission.Store interface)
// =============================================================================

func (m *Memory) SaveMission(_ context.Context, ms mission.Mission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveMissionLocked(ms)
}

func (m *Memory) saveMissionLocked(ms mission.Mission) error {
	if err := m.takeFault("SaveMission"); err != nil {
		return err
	}
	m.missions[ms.ID] = ms
	return nil
}

func (m *Memory) GetMission(_ context.Context, id string) (*mission.Mission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMissionLocked(id)
}

func (m *Memory) getMissionLocked(id string) (*mission.Mission, error) {
	ms, ok := m.missions[id]
	if !ok {
		return nil, nil
	}
	return &ms, nil
}

func (m *Memory) ListMissions(_ context.Context, status mission.Status) ([]mission.Mission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listMissionsLocked(status)
}

func (m *Memory) listMissionsLocked(status mission.Status) ([]mission.Mission, error) {
	var result []mission.Mission
	for _, ms := range m.missions {
		if status != "" && ms.Status != status {
			continue
		}
		result = append(result, ms)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) AddParticipant(_ context.Context, missionID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addParticipantLocked(missionID, userID, at)
}

func (m *Memory) addParticipantLocked(missionID, userID string, at time.Time) error {
	if err := m.takeFault("AddParticipant"); err != nil {
		return err
	}
	k := participantKey{MissionID: missionID, UserID: userID}
	if _, ok := m.participants[k]; ok {
		return mission.ErrAlreadyJoined
	}
	m.participants[k] = mission.Participant{
		MissionID: missionID,
		UserID:    userID,
		JoinedAt:  at,
	}
	ms := m.missions[missionID]
	ms.Participants++
	m.missions[missionID] = ms
	return nil
}

func (m *Memory) GetParticipant(_ context.Context, missionID, userID string) (*mission.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getParticipantLocked(missionID, userID)
}

func (m *Memory) getParticipantLocked(missionID, userID string) (*mission.Participant, error) {
	p, ok := m.participants[participantKey{MissionID: missionID, UserID: userID}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) CompleteParticipant(_ context.Context, missionID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeParticipantLocked(missionID, userID, at)
}

func (m *Memory) completeParticipantLocked(missionID, userID string, at time.Time) error {
	if err := m.takeFault("CompleteParticipant"); err != nil {
		return err
	}
	k := participantKey{MissionID: missionID, UserID: userID}
	p, ok := m.participants[k]
	if !ok {
		return mission.ErrNotParticipant
	}
	if p.CompletedAt != nil {
		return mission.ErrAlreadyCompleted
	}
	p.CompletedAt = &at
	m.participants[k] = p
	ms := m.missions[missionID]
	ms.Completions++
	m.missions[missionID] = ms
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (WithTx)
// =============================================================================

// WithTx executes fn within a simulated transaction: a snapshot of all
// state is taken first and restored if fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()

	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users        map[string]ledger.User
	transactions map[string][]ledger.Transaction
	vouchers     map[string]voucher.Voucher
	redemptions  map[string][]voucher.Redemption
	codes        map[string]bool
	missions     map[string]mission.Mission
	participants map[participantKey]mission.Participant
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		users:        make(map[string]ledger.User, len(m.users)),
		transactions: make(map[string][]ledger.Transaction, len(m.transactions)),
		vouchers:     make(map[string]voucher.Voucher, len(m.vouchers)),
		redemptions:  make(map[string][]voucher.Redemption, len(m.redemptions)),
		codes:        make(map[string]bool, len(m.codes)),
		missions:     make(map[string]mission.Mission, len(m.missions)),
		participants: make(map[participantKey]mission.Participant, len(m.participants)),
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.transactions {
		s.transactions[k] = append([]ledger.Transaction{}, v...)
	}
	for k, v := range m.vouchers {
		s.vouchers[k] = v
	}
	for k, v := range m.redemptions {
		s.redemptions[k] = append([]voucher.Redemption{}, v...)
	}
	for k, v := range m.codes {
		s.codes[k] = v
	}
	for k, v := range m.missions {
		s.missions[k] = v
	}
	for k, v := range m.participants {
		s.participants[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.users = s.users
	m.transactions = s.transactions
	m.vouchers = s.vouchers
	m.redemptions = s.redemptions
	m.codes = s.codes
	m.missions = s.missions
	m.participants = s.participants
}

// txMemoryView routes store operations to the parent's locked helpers.
// WithTx already holds the parent's lock.
type txMemoryView struct {
	parent *Memory
}

var (
	_ voucher.Store = (*txMemoryView)(nil)
	_ mission.Store = (*txMemoryView)(nil)
)

func (tv *txMemoryView) CreateUser(_ context.Context, u ledger.User) error {
	return tv.parent.createUserLocked(u)
}

func (tv *txMemoryView) GetUser(_ context.Context, id string) (*ledger.User, error) {
	return tv.parent.getUserLocked(id)
}

func (tv *txMemoryView) ApplyDelta(_ context.Context, userID string, delta int64) (int64, error) {
	return tv.parent.applyDeltaLocked(userID, delta)
}

func (tv *txMemoryView) Append(_ context.Context, tx ledger.Transaction) error {
	return tv.parent.appendLocked(tx)
}

func (tv *txMemoryView) Transactions(_ context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	return tv.parent.transactionsLocked(userID, limit)
}

func (tv *txMemoryView) TransactionsSince(_ context.Context, userID string, since time.Time) ([]ledger.Transaction, error) {
	return tv.parent.transactionsSinceLocked(userID, since)
}

func (tv *txMemoryView) TopUsers(_ context.Context, limit int) ([]ledger.User, error) {
	return tv.parent.topUsersLocked(limit)
}

func (tv *txMemoryView) SaveVoucher(_ context.Context, v voucher.Voucher) error {
	return tv.parent.saveVoucherLocked(v)
}

func (tv *txMemoryView) GetVoucher(_ context.Context, id string) (*voucher.Voucher, error) {
	return tv.parent.getVoucherLocked(id)
}

func (tv *txMemoryView) ListVouchers(_ context.Context, redeemableOnly bool) ([]voucher.Voucher, error) {
	return tv.parent.listVouchersLocked(redeemableOnly)
}

func (tv *txMemoryView) DecrementStock(_ context.Context, voucherID string) error {
	return tv.parent.decrementStockLocked(voucherID)
}

func (tv *txMemoryView) SaveRedemption(_ context.Context, r voucher.Redemption) error {
	return tv.parent.saveRedemptionLocked(r)
}

func (tv *txMemoryView) RedemptionsByUser(_ context.Context, userID string) ([]voucher.Redemption, error) {
	return tv.parent.redemptionsByUserLocked(userID)
}

func (tv *txMemoryView) SaveMission(_ context.Context, ms mission.Mission) error {
	return tv.parent.saveMissionLocked(ms)
}

func (tv *txMemoryView) GetMission(_ context.Context, id string) (*mission.Mission, error) {
	return tv.parent.getMissionLocked(id)
}

func (tv *txMemoryView) ListMissions(_ context.Context, status mission.Status) ([]mission.Mission, error) {
	return tv.parent.listMissionsLocked(status)
}

func (tv *txMemoryView) AddParticipant(_ context.Context, missionID, userID string, at time.Time) error {
	return tv.parent.addParticipantLocked(missionID, userID, at)
}

func (tv *txMemoryView) GetParticipant(_ context.Context, missionID, userID string) (*mission.Participant, error) {
	return tv.parent.getParticipantLocked(missionID, userID)
}

func (tv *txMemoryView) CompleteParticipant(_ context.Context, missionID, userID string, at time.Time) error {
	return tv.parent.completeParticipantLocked(missionID, userID, at)
}
