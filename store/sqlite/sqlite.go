/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.TxStore, voucher.TxStore, and mission.TxStore using
  SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements exist for the transactions table
  - Redemptions are insert-only

COUNTER GUARDS:
  The two shared counters (user balance, voucher stock) are mutated only
  through conditional UPDATEs whose WHERE clause enforces non-negativity.
  A zero-rows-affected result is translated into the typed precondition
  error, so a stale read can never drive a counter below zero.

KEY TABLES:
  users:                Accounts with the balance counter
  transactions:         Immutable ledger of all balance changes
  vouchers:             Catalog with the stock counter
  redemptions:          One row per successful redemption
  missions:             Volunteer events with lifecycle status
  mission_participants: Join/completion rows, one per user per mission

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within the process; WithTx holds
  the write lock for the whole unit. SQLite is opened in WAL mode.

USAGE:
  store, err := sqlite.New("./data/impact.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  led := ledger.NewLedger(store)

SEE ALSO:
  - ledger/store.go: Interface definitions and the ApplyDelta contract
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/goodturn/impact-engine/ledger"
	"github.com/goodturn/impact-engine/mission"
	"github.com/goodturn/impact-engine/voucher"
)

// timeFormat is a fixed-width UTC timestamp layout. RFC3339Nano trims
// trailing fractional zeros, so its strings do not sort in timestamp
// order; fixed width keeps ORDER BY and range comparisons on the
// stored text correct.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Interface conformance.
var (
	_ ledger.TxStore  = (*Store)(nil)
	_ voucher.TxStore = (*Store)(nil)
	_ mission.TxStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Users (balance counter lives here)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		compassion_points INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_points
		ON users(compassion_points DESC);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		related_id TEXT,
		description TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: per-user history, newest first
	CREATE INDEX IF NOT EXISTS idx_transactions_user_created
		ON transactions(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_related
		ON transactions(related_id) WHERE related_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_type
		ON transactions(tx_type);

	-- Vouchers (stock counter lives here)
	CREATE TABLE IF NOT EXISTS vouchers (
		id TEXT PRIMARY KEY,
		brand_name TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		points_cost INTEGER NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Redemptions (insert-only)
	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		voucher_id TEXT NOT NULL,
		points_spent INTEGER NOT NULL,
		redemption_code TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		redeemed_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_redemptions_user
		ON redemptions(user_id, redeemed_at DESC);

	-- Missions
	CREATE TABLE IF NOT EXISTS missions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		category TEXT,
		location TEXT,
		sponsor_id TEXT,
		points_reward INTEGER NOT NULL,
		capacity INTEGER NOT NULL DEFAULT 0,
		participant_count INTEGER NOT NULL DEFAULT 0,
		completed_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		starts_at TEXT,
		ends_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_missions_status
		ON missions(status);
	CREATE INDEX IF NOT EXISTS idx_missions_sponsor
		ON missions(sponsor_id);

	-- Participation (one row per user per mission)
	CREATE TABLE IF NOT EXISTS mission_participants (
		mission_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		completed_at TEXT,
		PRIMARY KEY (mission_id, user_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so the same logic
// runs inside and outside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// USER STORE (ledger.Store interface)
// =============================================================================

// CreateUser inserts a new user with a zero balance.
func (s *Store) CreateUser(ctx context.Context, u ledger.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createUser(ctx, s.db, u)
}

func createUser(ctx context.Context, q querier, u ledger.User) error {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, compassion_points, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, u.ID, u.Name, nullString(u.Email), createdAt.UTC().Format(timeFormat))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser returns the user, or nil if it does not exist.
func (s *Store) GetUser(ctx context.Context, id string) (*ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(ctx, s.db, id)
}

func getUser(ctx context.Context, q querier, id string) (*ledger.User, error) {
	var (
		u         ledger.User
		email     sql.NullString
		createdAt string
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, name, email, compassion_points, created_at FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.Name, &email, &u.CompassionPoints, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.Email = email.String
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &u, nil
}

// ApplyDelta atomically adjusts the balance, guarded non-negative.
func (s *Store) ApplyDelta(ctx context.Context, userID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return applyDelta(ctx, s.db, userID, delta)
}

func applyDelta(ctx context.Context, q querier, userID string, delta int64) (int64, error) {
	// Conditional update: the non-negativity guard fires in the database,
	// not in application code, so concurrent debits cannot both pass a
	// stale balance check.
	res, err := q.ExecContext(ctx, `
		UPDATE users
		SET compassion_points = compassion_points + ?
		WHERE id = ? AND compassion_points + ? >= 0
	`, delta, userID, delta)
	if err != nil {
		return 0, fmt.Errorf("failed to apply balance delta: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		var balance int64
		err := q.QueryRowContext(ctx,
			"SELECT compassion_points FROM users WHERE id = ?", userID,
		).Scan(&balance)
		if err == sql.ErrNoRows {
			return 0, ledger.ErrUserNotFound
		}
		if err != nil {
			return 0, err
		}
		return 0, &ledger.InsufficientPointsError{
			UserID:    userID,
			Available: balance,
			Requested: -delta,
		}
	}

	var balance int64
	if err := q.QueryRowContext(ctx,
		"SELECT compassion_points FROM users WHERE id = ?", userID,
	).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// TopUsers returns up to limit users ordered by balance, highest first.
func (s *Store) TopUsers(ctx context.Context, limit int) ([]ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, compassion_points, created_at
		FROM users
		ORDER BY compassion_points DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []ledger.User
	for rows.Next() {
		var (
			u         ledger.User
			email     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&u.ID, &u.Name, &email, &u.CompassionPoints, &createdAt); err != nil {
			return nil, err
		}
		u.Email = email.String
		u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// TRANSACTION STORE (ledger.Store interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, q querier, tx ledger.Transaction) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, tx_type, related_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		tx.UserID,
		tx.Amount,
		string(tx.Type),
		nullString(tx.RelatedID),
		tx.Description,
		tx.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// Transactions returns up to limit transactions for the user, newest
// first. limit <= 0 returns all.
func (s *Store) Transactions(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTransactions(ctx, s.db, userID, limit)
}

func queryTransactions(ctx context.Context, q querier, userID string, limit int) ([]ledger.Transaction, error) {
	query := `
		SELECT id, user_id, amount, tx_type, related_id, description, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// TransactionsSince returns the user's transactions created at or after
// since, newest first.
func (s *Store) TransactionsSince(ctx context.Context, userID string, since time.Time) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTransactionsSince(ctx, s.db, userID, since)
}

func queryTransactionsSince(ctx context.Context, q querier, userID string, since time.Time) ([]ledger.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, amount, tx_type, related_id, description, created_at
		FROM transactions
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC, rowid DESC
	`, userID, since.UTC().Format(timeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]ledger.Transaction, error) {
	var txs []ledger.Transaction
	for rows.Next() {
		var (
			tx          ledger.Transaction
			relatedID   sql.NullString
			description sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Type, &relatedID, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.RelatedID = relatedID.String
		tx.Description = description.String
		tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// VOUCHER STORE (voucher.Store interface)
// =============================================================================

// SaveVoucher inserts or updates a catalog entry.
func (s *Store) SaveVoucher(ctx context.Context, v voucher.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveVoucher(ctx, s.db, v)
}

func saveVoucher(ctx context.Context, q querier, v voucher.Voucher) error {
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO vouchers (id, brand_name, title, description, points_cost, stock, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			brand_name = excluded.brand_name,
			title = excluded.title,
			description = excluded.description,
			points_cost = excluded.points_cost,
			stock = excluded.stock,
			is_active = excluded.is_active
	`, v.ID, v.BrandName, v.Title, v.Description, v.PointsCost, v.Stock, v.IsActive,
		createdAt.UTC().Format(timeFormat))
	return err
}

// GetVoucher returns the voucher, or nil if it does not exist.
func (s *Store) GetVoucher(ctx context.Context, id string) (*voucher.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getVoucher(ctx, s.db, id)
}

func getVoucher(ctx context.Context, q querier, id string) (*voucher.Voucher, error) {
	var (
		v           voucher.Voucher
		description sql.NullString
		createdAt   string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, brand_name, title, description, points_cost, stock, is_active, created_at
		FROM vouchers WHERE id = ?
	`, id).Scan(&v.ID, &v.BrandName, &v.Title, &description, &v.PointsCost, &v.Stock, &v.IsActive, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v.Description = description.String
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &v, nil
}

// ListVouchers returns catalog entries, optionally only redeemable ones.
func (s *Store) ListVouchers(ctx context.Context, redeemableOnly bool) ([]voucher.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, brand_name, title, description, points_cost, stock, is_active, created_at
		FROM vouchers
	`
	if redeemableOnly {
		query += " WHERE is_active = TRUE AND stock > 0"
	}
	query += " ORDER BY brand_name, title"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vouchers []voucher.Voucher
	for rows.Next() {
		var (
			v           voucher.Voucher
			description sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&v.ID, &v.BrandName, &v.Title, &description, &v.PointsCost, &v.Stock, &v.IsActive, &createdAt); err != nil {
			return nil, err
		}
		v.Description = description.String
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

// DecrementStock decrements the voucher's stock by 1, guarded > 0.
func (s *Store) DecrementStock(ctx context.Context, voucherID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decrementStock(ctx, s.db, voucherID)
}

func decrementStock(ctx context.Context, q querier, voucherID string) error {
	res, err := q.ExecContext(ctx,
		"UPDATE vouchers SET stock = stock - 1 WHERE id = ? AND stock > 0",
		voucherID,
	)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM vouchers WHERE id = ?)", voucherID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return voucher.ErrVoucherNotFound
		}
		return &voucher.OutOfStockError{VoucherID: voucherID}
	}
	return nil
}

// SaveRedemption inserts a redemption record.
func (s *Store) SaveRedemption(ctx context.Context, r voucher.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRedemption(ctx, s.db, r)
}

func saveRedemption(ctx context.Context, q querier, r voucher.Redemption) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO redemptions (id, user_id, voucher_id, points_spent, redemption_code, status, redeemed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.UserID, r.VoucherID, r.PointsSpent, r.RedemptionCode, string(r.Status),
		r.RedeemedAt.UTC().Format(timeFormat),
		r.ExpiresAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to save redemption: %w", err)
	}
	return nil
}

// RedemptionsByUser returns the user's redemptions, newest first.
func (s *Store) RedemptionsByUser(ctx context.Context, userID string) ([]voucher.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, voucher_id, points_spent, redemption_code, status, redeemed_at, expires_at
		FROM redemptions
		WHERE user_id = ?
		ORDER BY redeemed_at DESC, rowid DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reds []voucher.Redemption
	for rows.Next() {
		var (
			r                   voucher.Redemption
			redeemedAt, expires string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.VoucherID, &r.PointsSpent, &r.RedemptionCode, &r.Status, &redeemedAt, &expires); err != nil {
			return nil, err
		}
		r.RedeemedAt, _ = time.Parse(time.RFC3339Nano, redeemedAt)
		r.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expires)
		reds = append(reds, r)
	}
	return reds, rows.Err()
}

// =============================================================================
// MISSION STORE (mission.Store interface)
// =============================================================================

// SaveMission inserts or updates a mission.
func (s *Store) SaveMission(ctx context.Context, m mission.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveMission(ctx, s.db, m)
}

func saveMission(ctx context.Context, q querier, m mission.Mission) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO missions (id, title, description, category, location, sponsor_id,
			points_reward, capacity, participant_count, completed_count, status,
			starts_at, ends_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			location = excluded.location,
			sponsor_id = excluded.sponsor_id,
			points_reward = excluded.points_reward,
			capacity = excluded.capacity,
			status = excluded.status,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at
	`, m.ID, m.Title, m.Description, m.Category, m.Location, nullString(m.SponsorID),
		m.PointsReward, m.Capacity, m.Participants, m.Completions, string(m.Status),
		formatTime(m.StartsAt), formatTime(m.EndsAt),
		m.CreatedAt.UTC().Format(timeFormat))
	return err
}

// GetMission returns the mission, or nil if it does not exist.
func (s *Store) GetMission(ctx context.Context, id string) (*mission.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMission(ctx, s.db, id)
}

func getMission(ctx context.Context, q querier, id string) (*mission.Mission, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, title, description, category, location, sponsor_id,
			points_reward, capacity, participant_count, completed_count, status,
			starts_at, ends_at, created_at
		FROM missions WHERE id = ?
	`, id)

	m, err := scanMission(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMissions returns missions, newest first, optionally by status.
func (s *Store) ListMissions(ctx context.Context, status mission.Status) ([]mission.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, title, description, category, location, sponsor_id,
			points_reward, capacity, participant_count, completed_count, status,
			starts_at, ends_at, created_at
		FROM missions
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []mission.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}

func scanMission(scan func(...any) error) (*mission.Mission, error) {
	var (
		m                     mission.Mission
		description, category sql.NullString
		location, sponsorID   sql.NullString
		startsAt, endsAt      sql.NullString
		createdAt             string
	)
	err := scan(&m.ID, &m.Title, &description, &category, &location, &sponsorID,
		&m.PointsReward, &m.Capacity, &m.Participants, &m.Completions, &m.Status,
		&startsAt, &endsAt, &createdAt)
	if err != nil {
		return nil, err
	}

	m.Description = description.String
	m.Category = category.String
	m.Location = location.String
	m.SponsorID = sponsorID.String
	m.StartsAt = parseTime(startsAt)
	m.EndsAt = parseTime(endsAt)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &m, nil
}

// AddParticipant inserts a participation row and bumps the counter.
func (s *Store) AddParticipant(ctx context.Context, missionID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addParticipant(ctx, s.db, missionID, userID, at)
}

func addParticipant(ctx context.Context, q querier, missionID, userID string, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO mission_participants (mission_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`, missionID, userID, at.UTC().Format(timeFormat))
	if err != nil {
		if isUniqueConstraintError(err) {
			return mission.ErrAlreadyJoined
		}
		return fmt.Errorf("failed to add participant: %w", err)
	}

	_, err = q.ExecContext(ctx,
		"UPDATE missions SET participant_count = participant_count + 1 WHERE id = ?",
		missionID,
	)
	return err
}

// GetParticipant returns the participation row, or nil.
func (s *Store) GetParticipant(ctx context.Context, missionID, userID string) (*mission.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getParticipant(ctx, s.db, missionID, userID)
}

func getParticipant(ctx context.Context, q querier, missionID, userID string) (*mission.Participant, error) {
	var (
		p           mission.Participant
		joinedAt    string
		completedAt sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT mission_id, user_id, joined_at, completed_at
		FROM mission_participants
		WHERE mission_id = ? AND user_id = ?
	`, missionID, userID).Scan(&p.MissionID, &p.UserID, &joinedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.JoinedAt, _ = time.Parse(time.RFC3339Nano, joinedAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		p.CompletedAt = &t
	}
	return &p, nil
}

// CompleteParticipant marks completion exactly once and bumps the counter.
func (s *Store) CompleteParticipant(ctx context.Context, missionID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return completeParticipant(ctx, s.db, missionID, userID, at)
}

func completeParticipant(ctx context.Context, q querier, missionID, userID string, at time.Time) error {
	// Guarded update: only an uncompleted participation row matches.
	res, err := q.ExecContext(ctx, `
		UPDATE mission_participants
		SET completed_at = ?
		WHERE mission_id = ? AND user_id = ? AND completed_at IS NULL
	`, at.UTC().Format(timeFormat), missionID, userID)
	if err != nil {
		return fmt.Errorf("failed to complete participant: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM mission_participants WHERE mission_id = ? AND user_id = ?)
		`, missionID, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return mission.ErrNotParticipant
		}
		return mission.ErrAlreadyCompleted
	}

	_, err = q.ExecContext(ctx,
		"UPDATE missions SET completed_count = completed_count + 1 WHERE id = ?",
		missionID,
	)
	return err
}

// =============================================================================
// AGGREGATES - Backing queries for analytics
// =============================================================================

// PointsDistributed returns the total mission-completion points credited
// for the given mission.
func (s *Store) PointsDistributed(ctx context.Context, missionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE related_id = ? AND tx_type = ?
	`, missionID, string(ledger.TxMissionCompletion)).Scan(&total)
	return total, err
}

// ProgramTotals holds the sponsor-level aggregates behind the CSR
// dashboard.
type ProgramTotals struct {
	Participants int64
	Points       int64
	Missions     int64
}

// GetProgramTotals aggregates across a sponsor's missions, or across all
// missions when sponsorID is empty.
func (s *Store) GetProgramTotals(ctx context.Context, sponsorID string) (ProgramTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		t      ProgramTotals
		filter string
		args   []any
	)
	if sponsorID != "" {
		filter = " WHERE sponsor_id = ?"
		args = append(args, sponsorID)
	}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(participant_count), 0) FROM missions"+filter, args...,
	).Scan(&t.Missions, &t.Participants)
	if err != nil {
		return ProgramTotals{}, err
	}

	pointsQuery := `
		SELECT COALESCE(SUM(t.amount), 0)
		FROM transactions t
		JOIN missions m ON m.id = t.related_id
		WHERE t.tx_type = ?
	`
	pointsArgs := []any{string(ledger.TxMissionCompletion)}
	if sponsorID != "" {
		pointsQuery += " AND m.sponsor_id = ?"
		pointsArgs = append(pointsArgs, sponsorID)
	}
	if err := s.db.QueryRowContext(ctx, pointsQuery, pointsArgs...).Scan(&t.Points); err != nil {
		return ProgramTotals{}, err
	}

	return t, nil
}

// =============================================================================
// TRANSACTIONAL STORE (WithTx)
// =============================================================================

// WithTx executes fn within a database transaction. The store handed to
// fn implements ledger.Store, voucher.Store, and mission.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txView{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txView routes store operations through an open transaction. It holds
// no locks of its own; WithTx already holds the store's write lock.
type txView struct {
	tx *sql.Tx
}

var (
	_ voucher.Store = (*txView)(nil)
	_ mission.Store = (*txView)(nil)
)

func (tv *txView) CreateUser(ctx context.Context, u ledger.User) error {
	return createUser(ctx, tv.tx, u)
}

func (tv *txView) GetUser(ctx context.Context, id string) (*ledger.User, error) {
	return getUser(ctx, tv.tx, id)
}

func (tv *txView) ApplyDelta(ctx context.Context, userID string, delta int64) (int64, error) {
	return applyDelta(ctx, tv.tx, userID, delta)
}

func (tv *txView) Append(ctx context.Context, tx ledger.Transaction) error {
	return appendTx(ctx, tv.tx, tx)
}

func (tv *txView) Transactions(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, tv.tx, userID, limit)
}

func (tv *txView) TransactionsSince(ctx context.Context, userID string, since time.Time) ([]ledger.Transaction, error) {
	return queryTransactionsSince(ctx, tv.tx, userID, since)
}

func (tv *txView) TopUsers(ctx context.Context, limit int) ([]ledger.User, error) {
	rows, err := tv.tx.QueryContext(ctx, `
		SELECT id, name, email, compassion_points, created_at
		FROM users
		ORDER BY compassion_points DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []ledger.User
	for rows.Next() {
		var (
			u         ledger.User
			email     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&u.ID, &u.Name, &email, &u.CompassionPoints, &createdAt); err != nil {
			return nil, err
		}
		u.Email = email.String
		u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (tv *txView) SaveVoucher(ctx context.Context, v voucher.Voucher) error {
	return saveVoucher(ctx, tv.tx, v)
}

func (tv *txView) GetVoucher(ctx context.Context, id string) (*voucher.Voucher, error) {
	return getVoucher(ctx, tv.tx, id)
}

func (tv *txView) ListVouchers(ctx context.Context, redeemableOnly bool) ([]voucher.Voucher, error) {
	query := `
		SELECT id, brand_name, title, description, points_cost, stock, is_active, created_at
		FROM vouchers
	`
	if redeemableOnly {
		query += " WHERE is_active = TRUE AND stock > 0"
	}
	query += " ORDER BY brand_name, title"

	rows, err := tv.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vouchers []voucher.Voucher
	for rows.Next() {
		var (
			v           voucher.Voucher
			description sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&v.ID, &v.BrandName, &v.Title, &description, &v.PointsCost, &v.Stock, &v.IsActive, &createdAt); err != nil {
			return nil, err
		}
		v.Description = description.String
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

func (tv *txView) DecrementStock(ctx context.Context, voucherID string) error {
	return decrementStock(ctx, tv.tx, voucherID)
}

func (tv *txView) SaveRedemption(ctx context.Context, r voucher.Redemption) error {
	return saveRedemption(ctx, tv.tx, r)
}

func (tv *txView) RedemptionsByUser(ctx context.Context, userID string) ([]voucher.Redemption, error) {
	rows, err := tv.tx.QueryContext(ctx, `
		SELECT id, user_id, voucher_id, points_spent, redemption_code, status, redeemed_at, expires_at
		FROM redemptions
		WHERE user_id = ?
		ORDER BY redeemed_at DESC, rowid DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reds []voucher.Redemption
	for rows.Next() {
		var (
			r                   voucher.Redemption
			redeemedAt, expires string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.VoucherID, &r.PointsSpent, &r.RedemptionCode, &r.Status, &redeemedAt, &expires); err != nil {
			return nil, err
		}
		r.RedeemedAt, _ = time.Parse(time.RFC3339Nano, redeemedAt)
		r.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expires)
		reds = append(reds, r)
	}
	return reds, rows.Err()
}

func (tv *txView) SaveMission(ctx context.Context, m mission.Mission) error {
	return saveMission(ctx, tv.tx, m)
}

func (tv *txView) GetMission(ctx context.Context, id string) (*mission.Mission, error) {
	return getMission(ctx, tv.tx, id)
}

func (tv *txView) ListMissions(ctx context.Context, status mission.Status) ([]mission.Mission, error) {
	query := `
		SELECT id, title, description, category, location, sponsor_id,
			points_reward, capacity, participant_count, completed_count, status,
			starts_at, ends_at, created_at
		FROM missions
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := tv.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []mission.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}

func (tv *txView) AddParticipant(ctx context.Context, missionID, userID string, at time.Time) error {
	return addParticipant(ctx, tv.tx, missionID, userID, at)
}

func (tv *txView) GetParticipant(ctx context.Context, missionID, userID string) (*mission.Participant, error) {
	return getParticipant(ctx, tv.tx, missionID, userID)
}

func (tv *txView) CompleteParticipant(ctx context.Context, missionID, userID string, at time.Time) error {
	return completeParticipant(ctx, tv.tx, missionID, userID, at)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil &&
		(strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "duplicate key"))
}
