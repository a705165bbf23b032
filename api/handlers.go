/*
handlers.go - HTTP API handlers for the impact engine

PURPOSE:
  Exposes the points ledger, voucher redemption, and mission lifecycle
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Users:
    POST   /api/users                    Create user (balance 0)
    GET    /api/users/{id}               Get user details
    GET    /api/users/{id}/balance       Current point balance
    GET    /api/users/{id}/transactions  Ledger history, newest first
    GET    /api/users/{id}/growth        Month-over-month earning growth
    GET    /api/users/{id}/redemptions   Redemption history

  Leaderboard:
    GET    /api/leaderboard              Top users by balance

  Vouchers:
    GET    /api/vouchers                 Redeemable catalog
    POST   /api/vouchers                 Add catalog entry
    POST   /api/vouchers/{id}/redeem     Redeem (atomic four-effect unit)

  Missions:
    GET    /api/missions                 List (optional ?status=)
    POST   /api/missions                 Create (draft)
    GET    /api/missions/{id}            Get details
    POST   /api/missions/{id}/status     Lifecycle transition
    POST   /api/missions/{id}/join       Join as participant
    POST   /api/missions/{id}/complete   Complete and award points
    GET    /api/missions/{id}/analytics  Engagement score

  Admin:
    POST   /api/admin/bonus              One-off bonus credit
    POST   /api/admin/adjustments        Manual correction, either sign
    GET    /api/admin/dashboard          Program totals and impact score

ERROR HANDLING:
  Domain errors are mapped to HTTP status by kind:
  - 400: Validation errors, invalid input
  - 404: User, voucher, or mission not found
  - 409: Precondition conflicts (insufficient points, out of stock,
         duplicate user id, already joined/completed, invalid transition)
  - 500: Internal errors (logged; details not leaked)

SECURITY NOTE:
  No authentication middleware. The admin group is expected to sit
  behind a gateway that enforces auth.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/goodturn/impact-engine/analytics"
	"github.com/goodturn/impact-engine/ledger"
	"github.com/goodturn/impact-engine/mission"
	"github.com/goodturn/impact-engine/store/sqlite"
	"github.com/goodturn/impact-engine/voucher"
)

const defaultLeaderboardSize = 10

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Ledger   *ledger.Ledger
	Redeemer *voucher.Redeemer
	Missions *mission.Service

	log *logrus.Logger
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, log *logrus.Logger) *Handler {
	return &Handler{
		Store:    store,
		Ledger:   ledger.NewLedger(store),
		Redeemer: voucher.NewRedeemer(store),
		Missions: mission.NewService(store),
		log:      log,
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// CreateUser creates a new user with a zero balance.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	u := ledger.User{ID: req.ID, Name: req.Name, Email: req.Email}
	if err := h.Store.CreateUser(r.Context(), u); err != nil {
		h.writeDomainError(w, "Failed to create user", err)
		return
	}

	created, err := h.Store.GetUser(r.Context(), req.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to load created user", err)
		return
	}
	if created == nil {
		h.writeDomainError(w, "Failed to load created user", ledger.ErrUserNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(*created))
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	u, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// GetBalance returns the user's current point balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	balance, err := h.Ledger.Balance(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{UserID: id, CompassionPoints: balance})
}

// GetTransactions returns the user's ledger history, newest first.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 0)

	u, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}

	txs, err := h.Ledger.History(r.Context(), id, limit)
	if err != nil {
		h.writeDomainError(w, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetGrowth returns the user's month-over-month earning growth.
func (h *Handler) GetGrowth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	u, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}

	// Only the current and previous calendar months matter.
	now := time.Now()
	prevStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	txs, err := h.Store.TransactionsSince(r.Context(), id, prevStart)
	if err != nil {
		h.writeDomainError(w, "Failed to get transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, GrowthDTO{
		UserID:        id,
		GrowthPercent: analytics.MonthOverMonthGrowth(txs, now),
	})
}

// GetRedemptions returns the user's redemption history, newest first.
func (h *Handler) GetRedemptions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	reds, err := h.Redeemer.Redemptions(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get redemptions", err)
		return
	}

	dtos := make([]RedemptionDTO, len(reds))
	for i, red := range reds {
		dtos[i] = toRedemptionDTO(red)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLeaderboard returns the top users by balance.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLeaderboardSize)

	users, err := h.Store.TopUsers(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, "Failed to get leaderboard", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// VOUCHER HANDLERS
// =============================================================================

// ListVouchers returns the redeemable catalog. Pass ?all=true to include
// inactive and out-of-stock entries.
func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	redeemableOnly := r.URL.Query().Get("all") != "true"

	vouchers, err := h.Store.ListVouchers(r.Context(), redeemableOnly)
	if err != nil {
		h.writeDomainError(w, "Failed to list vouchers", err)
		return
	}

	dtos := make([]VoucherDTO, len(vouchers))
	for i, v := range vouchers {
		dtos[i] = toVoucherDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateVoucher adds a catalog entry.
func (h *Handler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	var req CreateVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.BrandName == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "id, brand_name and title are required", nil)
		return
	}
	if req.PointsCost <= 0 || req.Stock < 0 {
		writeError(w, http.StatusBadRequest, "points_cost must be positive and stock non-negative", nil)
		return
	}

	v := voucher.Voucher{
		ID:          req.ID,
		BrandName:   req.BrandName,
		Title:       req.Title,
		Description: req.Description,
		PointsCost:  req.PointsCost,
		Stock:       req.Stock,
		IsActive:    req.IsActive,
	}
	if err := h.Store.SaveVoucher(r.Context(), v); err != nil {
		h.writeDomainError(w, "Failed to create voucher", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVoucherDTO(v))
}

// RedeemVoucher exchanges points for a voucher.
func (h *Handler) RedeemVoucher(w http.ResponseWriter, r *http.Request) {
	voucherID := chi.URLParam(r, "id")

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	red, snap, err := h.Redeemer.Redeem(r.Context(), req.UserID, voucherID)
	if err != nil {
		h.writeDomainError(w, "Redemption failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, RedeemResponse{
		Redemption: toRedemptionDTO(*red),
		Voucher:    toVoucherDTO(*snap),
	})
}

// =============================================================================
// MISSION HANDLERS
// =============================================================================

// ListMissions returns missions, optionally filtered by ?status=.
func (h *Handler) ListMissions(w http.ResponseWriter, r *http.Request) {
	status := mission.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}

	missions, err := h.Missions.List(r.Context(), status)
	if err != nil {
		h.writeDomainError(w, "Failed to list missions", err)
		return
	}

	dtos := make([]MissionDTO, len(missions))
	for i, m := range missions {
		dtos[i] = toMissionDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMission creates a mission in draft status.
func (h *Handler) CreateMission(w http.ResponseWriter, r *http.Request) {
	var req CreateMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required", nil)
		return
	}

	m := mission.Mission{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Location:     req.Location,
		SponsorID:    req.SponsorID,
		PointsReward: req.PointsReward,
		Capacity:     req.Capacity,
	}
	var err error
	if req.StartsAt != "" {
		if m.StartsAt, err = time.Parse(time.RFC3339, req.StartsAt); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid starts_at (use RFC3339)", err)
			return
		}
	}
	if req.EndsAt != "" {
		if m.EndsAt, err = time.Parse(time.RFC3339, req.EndsAt); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid ends_at (use RFC3339)", err)
			return
		}
	}

	created, err := h.Missions.Create(r.Context(), m)
	if err != nil {
		h.writeDomainError(w, "Failed to create mission", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMissionDTO(created))
}

// GetMission returns a single mission.
func (h *Handler) GetMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m, err := h.Missions.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get mission", err)
		return
	}
	writeJSON(w, http.StatusOK, toMissionDTO(*m))
}

// TransitionMission moves the mission through its lifecycle.
func (h *Handler) TransitionMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := h.Missions.Transition(r.Context(), id, mission.Status(req.Status))
	if err != nil {
		h.writeDomainError(w, "Failed to transition mission", err)
		return
	}
	writeJSON(w, http.StatusOK, toMissionDTO(updated))
}

// JoinMission registers the user as a participant.
func (h *Handler) JoinMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	if err := h.Missions.Join(r.Context(), id, req.UserID); err != nil {
		h.writeDomainError(w, "Failed to join mission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteMission marks the participation complete and awards points.
func (h *Handler) CompleteMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	tx, err := h.Missions.Complete(r.Context(), id, req.UserID)
	if err != nil {
		h.writeDomainError(w, "Failed to complete mission", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// GetMissionAnalytics returns the mission's engagement summary.
func (h *Handler) GetMissionAnalytics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m, err := h.Missions.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get mission", err)
		return
	}

	points, err := h.Store.PointsDistributed(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get points distributed", err)
		return
	}

	writeJSON(w, http.StatusOK, MissionAnalyticsDTO{
		MissionID:         m.ID,
		Participants:      m.Participants,
		Completions:       m.Completions,
		CompletionRate:    m.CompletionRate(),
		PointsDistributed: points,
		EngagementScore:   analytics.MissionEngagementScore(m.Participants, m.CompletionRate(), points),
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// AwardBonus credits a one-off bonus.
func (h *Handler) AwardBonus(w http.ResponseWriter, r *http.Request) {
	var req BonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tx, err := h.Ledger.AwardBonus(r.Context(), req.UserID, req.Amount, req.Description)
	if err != nil {
		h.writeDomainError(w, "Failed to award bonus", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// CreateAdjustment applies a manual balance correction of either sign.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tx, err := h.Ledger.Adjust(r.Context(), req.UserID, req.Amount, req.Description)
	if err != nil {
		h.writeDomainError(w, "Failed to apply adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// GetDashboard returns program totals and the impact score, optionally
// scoped to ?sponsor_id=.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	sponsorID := r.URL.Query().Get("sponsor_id")

	totals, err := h.Store.GetProgramTotals(r.Context(), sponsorID)
	if err != nil {
		h.writeDomainError(w, "Failed to get program totals", err)
		return
	}

	writeJSON(w, http.StatusOK, DashboardDTO{
		SponsorID:         sponsorID,
		TotalMissions:     totals.Missions,
		TotalParticipants: totals.Participants,
		PointsDistributed: totals.Points,
		ImpactScore:       analytics.ProgramImpactScore(totals.Participants, totals.Points, totals.Missions),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeDomainError maps domain errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var transitionErr *mission.InvalidTransitionError

	switch {
	case errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, voucher.ErrVoucherNotFound),
		errors.Is(err, mission.ErrMissionNotFound):
		writeError(w, http.StatusNotFound, message, err)

	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, voucher.ErrVoucherInactive),
		errors.Is(err, mission.ErrNotJoinable),
		errors.Is(err, mission.ErrNotParticipant):
		writeError(w, http.StatusBadRequest, message, err)

	case errors.Is(err, ledger.ErrInsufficientPoints),
		errors.Is(err, ledger.ErrUserExists),
		errors.Is(err, voucher.ErrOutOfStock),
		errors.Is(err, mission.ErrAlreadyJoined),
		errors.Is(err, mission.ErrAlreadyCompleted),
		errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, message, err)

	default:
		h.log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
