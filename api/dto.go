/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and domain code, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/goodturn/impact-engine/ledger"
	"github.com/goodturn/impact-engine/mission"
	"github.com/goodturn/impact-engine/voucher"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email,omitempty"`
	CompassionPoints int64  `json:"compassion_points"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// CreateUserRequest is the request to create a user.
// The balance always starts at 0; it is not a settable field.
type CreateUserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// BalanceDTO is a user's current point balance.
type BalanceDTO struct {
	UserID           string `json:"user_id"`
	CompassionPoints int64  `json:"compassion_points"`
}

// TransactionDTO represents a ledger transaction.
type TransactionDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Type        string `json:"type"`
	RelatedID   string `json:"related_id,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// GrowthDTO is the month-over-month earning growth for a user.
type GrowthDTO struct {
	UserID        string  `json:"user_id"`
	GrowthPercent float64 `json:"growth_percent"`
}

// VoucherDTO represents a catalog entry.
type VoucherDTO struct {
	ID          string `json:"id"`
	BrandName   string `json:"brand_name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PointsCost  int64  `json:"points_cost"`
	Stock       int64  `json:"stock"`
	IsActive    bool   `json:"is_active"`
}

// CreateVoucherRequest is the request to add a catalog entry.
type CreateVoucherRequest struct {
	ID          string `json:"id"`
	BrandName   string `json:"brand_name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PointsCost  int64  `json:"points_cost"`
	Stock       int64  `json:"stock"`
	IsActive    bool   `json:"is_active"`
}

// RedeemRequest is the request to redeem a voucher.
type RedeemRequest struct {
	UserID string `json:"user_id"`
}

// RedemptionDTO represents one points-for-voucher exchange.
type RedemptionDTO struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	VoucherID      string `json:"voucher_id"`
	PointsSpent    int64  `json:"points_spent"`
	RedemptionCode string `json:"redemption_code"`
	Status         string `json:"status"`
	RedeemedAt     string `json:"redeemed_at"`
	ExpiresAt      string `json:"expires_at"`
}

// RedeemResponse is returned after a successful redemption.
type RedeemResponse struct {
	Redemption RedemptionDTO `json:"redemption"`
	Voucher    VoucherDTO    `json:"voucher"`
}

// MissionDTO represents a volunteer mission.
type MissionDTO struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category,omitempty"`
	Location     string `json:"location,omitempty"`
	SponsorID    string `json:"sponsor_id,omitempty"`
	PointsReward int64  `json:"points_reward"`
	Capacity     int64  `json:"capacity"`
	Participants int64  `json:"participants"`
	Completions  int64  `json:"completions"`
	Status       string `json:"status"`
	StartsAt     string `json:"starts_at,omitempty"`
	EndsAt       string `json:"ends_at,omitempty"`
}

// CreateMissionRequest is the request to create a mission (draft status).
type CreateMissionRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category,omitempty"`
	Location     string `json:"location,omitempty"`
	SponsorID    string `json:"sponsor_id,omitempty"`
	PointsReward int64  `json:"points_reward"`
	Capacity     int64  `json:"capacity"`
	StartsAt     string `json:"starts_at,omitempty"`
	EndsAt       string `json:"ends_at,omitempty"`
}

// TransitionRequest is the request to move a mission through its lifecycle.
type TransitionRequest struct {
	Status string `json:"status"`
}

// ParticipantRequest identifies the user joining or completing a mission.
type ParticipantRequest struct {
	UserID string `json:"user_id"`
}

// MissionAnalyticsDTO is the per-mission engagement summary.
type MissionAnalyticsDTO struct {
	MissionID         string  `json:"mission_id"`
	Participants      int64   `json:"participants"`
	Completions       int64   `json:"completions"`
	CompletionRate    float64 `json:"completion_rate"`
	PointsDistributed int64   `json:"points_distributed"`
	EngagementScore   float64 `json:"engagement_score"`
}

// BonusRequest is the request to award a one-off bonus.
type BonusRequest struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

// AdjustmentRequest is the request for a manual balance correction.
type AdjustmentRequest struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

// DashboardDTO is the sponsor (CSR) program summary.
type DashboardDTO struct {
	SponsorID         string  `json:"sponsor_id,omitempty"`
	TotalMissions     int64   `json:"total_missions"`
	TotalParticipants int64   `json:"total_participants"`
	PointsDistributed int64   `json:"points_distributed"`
	ImpactScore       float64 `json:"impact_score"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserDTO(u ledger.User) UserDTO {
	return UserDTO{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		CompassionPoints: u.CompassionPoints,
		CreatedAt:        u.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Amount:      tx.Amount,
		Type:        string(tx.Type),
		RelatedID:   tx.RelatedID,
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toVoucherDTO(v voucher.Voucher) VoucherDTO {
	return VoucherDTO{
		ID:          v.ID,
		BrandName:   v.BrandName,
		Title:       v.Title,
		Description: v.Description,
		PointsCost:  v.PointsCost,
		Stock:       v.Stock,
		IsActive:    v.IsActive,
	}
}

func toRedemptionDTO(r voucher.Redemption) RedemptionDTO {
	return RedemptionDTO{
		ID:             r.ID,
		UserID:         r.UserID,
		VoucherID:      r.VoucherID,
		PointsSpent:    r.PointsSpent,
		RedemptionCode: r.RedemptionCode,
		Status:         string(r.Status),
		RedeemedAt:     r.RedeemedAt.Format(time.RFC3339),
		ExpiresAt:      r.ExpiresAt.Format(time.RFC3339),
	}
}

func toMissionDTO(m mission.Mission) MissionDTO {
	dto := MissionDTO{
		ID:           m.ID,
		Title:        m.Title,
		Description:  m.Description,
		Category:     m.Category,
		Location:     m.Location,
		SponsorID:    m.SponsorID,
		PointsReward: m.PointsReward,
		Capacity:     m.Capacity,
		Participants: m.Participants,
		Completions:  m.Completions,
		Status:       string(m.Status),
	}
	if !m.StartsAt.IsZero() {
		dto.StartsAt = m.StartsAt.Format(time.RFC3339)
	}
	if !m.EndsAt.IsZero() {
		dto.EndsAt = m.EndsAt.Format(time.RFC3339)
	}
	return dto
}
