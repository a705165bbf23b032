/*
Package mission provides mission lifecycle and participation.

PURPOSE:
  Missions are the volunteer events users join to earn Compassion Points.
  This package owns the mission record, its status machine, and the
  participation flow that ends in a ledger award.

KEY CONCEPTS IN THIS FILE (types.go):
  - Mission: Event with a point reward, capacity, and lifecycle status
  - Status: Closed five-value lifecycle with an explicit transition table
  - Participant: One user's involvement in one mission

LIFECYCLE:
  draft -> published -> ongoing -> completed
  cancelled is reachable from draft, published, and ongoing.
  completed and cancelled are terminal.

SEE ALSO:
  - service.go: Join, Complete, and status transitions
  - ledger/: Where completion awards land
*/
package mission

import "time"

// =============================================================================
// STATUS - Mission lifecycle
// =============================================================================

// Status is the lifecycle state of a mission.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the five lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a mission in state s may move to state to.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusDraft:
		return to == StatusPublished || to == StatusCancelled
	case StatusPublished:
		return to == StatusOngoing || to == StatusCancelled
	case StatusOngoing:
		return to == StatusCompleted || to == StatusCancelled
	default: // completed and cancelled are terminal
		return false
	}
}

// =============================================================================
// MISSION - Volunteer event
// =============================================================================

// Mission is a volunteer event that rewards participants with points.
type Mission struct {
	ID            string
	Title         string
	Description   string
	Category      string
	Location      string
	SponsorID     string
	PointsReward  int64
	Capacity      int64 // 0 = unlimited
	Participants  int64 // joined
	Completions   int64 // completed
	Status        Status
	StartsAt      time.Time
	EndsAt        time.Time
	CreatedAt     time.Time
}

// Joinable reports whether the mission currently accepts participants.
func (m Mission) Joinable() bool {
	if m.Status != StatusPublished && m.Status != StatusOngoing {
		return false
	}
	return m.Capacity == 0 || m.Participants < m.Capacity
}

// CompletionRate returns the share of participants who completed, as a
// percentage in [0, 100].
func (m Mission) CompletionRate() float64 {
	if m.Participants == 0 {
		return 0
	}
	return float64(m.Completions) / float64(m.Participants) * 100
}

// =============================================================================
// PARTICIPANT - One user's involvement in one mission
// =============================================================================

// Participant links a user to a mission. CompletedAt is nil until the
// participation is completed, which happens at most once.
type Participant struct {
	MissionID   string
	UserID      string
	JoinedAt    time.Time
	CompletedAt *time.Time
}
