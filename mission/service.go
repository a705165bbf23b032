/*
service.go - Mission participation and lifecycle operations

PURPOSE:
  Implements the mission-facing operations: create, publish and move
  through the lifecycle, join, and complete. Completion is where points
  enter the system: marking a participant complete and crediting the
  ledger happen in the same atomic unit, and a participant can be
  completed at most once, so a mission never pays the same user twice.

SEE ALSO:
  - types.go: Mission, Status, Participant
  - ledger/ledger.go: Apply, the composable ledger mutation
*/
package mission

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
	// ErrMissionNotFound is returned when the referenced mission does not exist.
	ErrMissionNotFound = errors.New("mission not found")

	// ErrNotJoinable is returned when the mission is not accepting
	// participants (wrong status or at capacity).
	ErrNotJoinable = errors.New("mission not joinable")

	// ErrAlreadyJoined is returned when the user already joined the mission.
	ErrAlreadyJoined = errors.New("already joined mission")

	// ErrNotParticipant is returned when completing a user who never joined.
	ErrNotParticipant = errors.New("user is not a participant")

	// ErrAlreadyCompleted is returned when the participation was already
	// completed. Keeps completion awards exactly-once.
	ErrAlreadyCompleted = errors.New("participation already completed")
)

// InvalidTransitionError reports a disallowed lifecycle move.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid mission transition: %s -> %s", e.From, e.To)
}

// =============================================================================
// STORE - Persistence interface for missions and participants
// =============================================================================

// Store extends the ledger store with mission records and participation.
type Store interface {
	ledger.Store

	// SaveMission inserts or updates a mission.
	SaveMission(ctx context.Context, m Mission) error

	// GetMission returns the mission, or nil if it does not exist.
	GetMission(ctx context.Context, id string) (*Mission, error)

	// ListMissions returns missions, newest first, optionally filtered
	// by status ("" = all).
	ListMissions(ctx context.Context, status Status) ([]Mission, error)

	// AddParticipant inserts a participation row and increments the
	// mission's participant count. Fails with ErrAlreadyJoined if the
	// user already joined.
	AddParticipant(ctx context.Context, missionID, userID string, at time.Time) error

	// GetParticipant returns the participation row, or nil.
	GetParticipant(ctx context.Context, missionID, userID string) (*Participant, error)

	// CompleteParticipant sets the participant's completion time and
	// increments the mission's completion count. Fails with
	// ErrAlreadyCompleted if already set; the guard is applied in the
	// store, so a retried completion can never double-pay.
	CompleteParticipant(ctx context.Context, missionID, userID string, at time.Time) error
}

// TxStore is a Store whose WithTx hands out stores implementing Store.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(ledger.Store) error) error
}

// =============================================================================
// SERVICE - Mission operations
// =============================================================================

// Service coordinates missions, participation, and completion awards.
type Service struct {
	store TxStore
	now   func() time.Time
}

// NewService creates a mission service backed by the given store.
func NewService(store TxStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Create inserts a new mission in draft status and returns it.
func (s *Service) Create(ctx context.Context, m Mission) (Mission, error) {
	if m.PointsReward <= 0 {
		return Mission{}, ledger.ErrInvalidAmount
	}
	m.ID = uuid.NewString()
	m.Status = StatusDraft
	m.Participants = 0
	m.Completions = 0
	m.CreatedAt = s.now().UTC()
	if err := s.store.SaveMission(ctx, m); err != nil {
		return Mission{}, err
	}
	return m, nil
}

// Get returns a mission by ID.
func (s *Service) Get(ctx context.Context, id string) (*Mission, error) {
	m, err := s.store.GetMission(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMissionNotFound
	}
	return m, nil
}

// List returns missions, optionally filtered by status ("" = all).
func (s *Service) List(ctx context.Context, status Status) ([]Mission, error) {
	return s.store.ListMissions(ctx, status)
}

// Transition moves the mission through its lifecycle.
func (s *Service) Transition(ctx context.Context, missionID string, to Status) (Mission, error) {
	if !to.Valid() {
		return Mission{}, &InvalidTransitionError{To: to}
	}

	var updated Mission
	err := s.store.WithTx(ctx, func(ls ledger.Store) error {
		st, ok := ls.(Store)
		if !ok {
			return ledger.ErrStoreRequired
		}
		m, err := st.GetMission(ctx, missionID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrMissionNotFound
		}
		if !m.Status.CanTransition(to) {
			return &InvalidTransitionError{From: m.Status, To: to}
		}
		m.Status = to
		if err := st.SaveMission(ctx, *m); err != nil {
			return err
		}
		updated = *m
		return nil
	})
	if err != nil {
		return Mission{}, err
	}
	return updated, nil
}

// Join registers the user as a participant.
func (s *Service) Join(ctx context.Context, missionID, userID string) error {
	return s.store.WithTx(ctx, func(ls ledger.Store) error {
		st, ok := ls.(Store)
		if !ok {
			return ledger.ErrStoreRequired
		}
		m, err := st.GetMission(ctx, missionID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrMissionNotFound
		}
		if !m.Joinable() {
			return ErrNotJoinable
		}
		u, err := st.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ledger.ErrUserNotFound
		}
		return st.AddParticipant(ctx, missionID, userID, s.now().UTC())
	})
}

// Complete marks the user's participation complete and credits the
// mission's point reward, atomically. A second call for the same
// user+mission fails with ErrAlreadyCompleted and awards nothing.
func (s *Service) Complete(ctx context.Context, missionID, userID string) (ledger.Transaction, error) {
	var awarded ledger.Transaction
	err := s.store.WithTx(ctx, func(ls ledger.Store) error {
		st, ok := ls.(Store)
		if !ok {
			return ledger.ErrStoreRequired
		}
		m, err := st.GetMission(ctx, missionID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrMissionNotFound
		}

		now := s.now().UTC()
		if err := st.CompleteParticipant(ctx, missionID, userID, now); err != nil {
			return err
		}

		awarded, err = ledger.Apply(ctx, st, ledger.Mutation{
			UserID:      userID,
			Amount:      m.PointsReward,
			Type:        ledger.TxMissionCompletion,
			RelatedID:   missionID,
			Description: fmt.Sprintf("Completed mission: %s", m.Title),
		}, now)
		return err
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	return awarded, nil
}
