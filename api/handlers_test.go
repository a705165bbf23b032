/*
handlers_test.go - HTTP-level tests for the API

Tests the full request path: router, JSON codec, handler, domain logic,
and SQLite store. Each test gets a fresh in-memory database.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goodturn/impact-engine/api"
	"github.com/goodturn/impact-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(store, log)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func doJSONList(t *testing.T, srv *httptest.Server, path string) (*http.Response, []map[string]any) {
	t.Helper()

	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func createTestUser(t *testing.T, srv *httptest.Server, id string) {
	t.Helper()
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/users", map[string]any{
		"id": id, "name": "Test User",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func awardBonus(t *testing.T, srv *httptest.Server, userID string, amount int64) {
	t.Helper()
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/admin/bonus", map[string]any{
		"user_id": userID, "amount": amount, "description": "seed",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// =============================================================================
// USER LIFECYCLE
// =============================================================================

func TestAPI_CreateUser_StartsAtZero(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/users", map[string]any{
		"id": "user-1", "name": "Ada", "email": "ada@example.com",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "user-1", body["id"])
	assert.Equal(t, float64(0), body["compassion_points"])

	resp, body = doJSON(t, srv, http.MethodGet, "/api/users/user-1/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["compassion_points"])
}

func TestAPI_CreateUser_MissingFields_BadRequest(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/users", map[string]any{"id": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CreateUser_DuplicateID_Conflict(t *testing.T) {
	srv := newTestServer(t)
	createTestUser(t, srv, "user-1")

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/users", map[string]any{
		"id": "user-1", "name": "Someone Else",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_Balance_UnknownUser_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, http.MethodGet, "/api/users/ghost/balance", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

func TestAPI_BonusAndAdjustment_MoveBalance(t *testing.T) {
	srv := newTestServer(t)
	createTestUser(t, srv, "user-1")

	awardBonus(t, srv, "user-1", 500)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/admin/adjustments", map[string]any{
		"user_id": "user-1", "amount": -100, "description": "correction",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(-100), body["amount"])
	assert.Equal(t, "adjustment", body["type"])

	resp, body = doJSON(t, srv, http.MethodGet, "/api/users/user-1/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(400), body["compassion_points"])
}

func TestAPI_Adjustment_ZeroAmount_BadRequest(t *testing.T) {
	srv := newTestServer(t)
	createTestUser(t, srv, "user-1")

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/admin/adjustments", map[string]any{
		"user_id": "user-1", "amount": 0,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// TRANSACTIONS AND LEADERBOARD
// =============================================================================

func TestAPI_Transactions_NewestFirst(t *testing.T) {
	srv := newTestServer(t)
	createTestUser(t, srv, "user-1")
	awardBonus(t, srv, "user-1", 100)
	awardBonus(t, srv, "user-1", 200)

	resp, txs := doJSONList(t, srv, "/api/users/user-1/transactions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, txs, 2)
	assert.Equal(t, float64(200), txs[0]["amount"])
	assert.Equal(t, float64(100), txs[1]["amount"])

	resp, txs = doJSONList(t, srv, "/api/users/user-1/transactions?limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, txs, 1)
}

func TestAPI_Leaderboard_OrderedByBalance(t *testing.T) {
	srv := newTestServer(t)
	for i, points := range []int64{100, 300, 200} {
		id := fmt.Sprintf("user-%d", i+1)
		createTestUser(t, srv, id)
		awardBonus(t, srv, id, points)
	}

	resp, users := doJSONList(t, srv, "/api/leaderboard?limit=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, users, 2)
	assert.Equal(t, "user-2", users[0]["id"])
	assert.Equal(t, "user-3", users[1]["id"])
}

// =============================================================================
// VOUCHER REDEMPTION
// =============================================================================

func seedVoucher(t *testing.T, srv *httptest.Server, stock int64) {
	t.Helper()
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/vouchers", map[string]any{
		"id": "v-1", "brand_name": "BeanHouse", "title": "Free Coffee",
		"points_cost": 3000, "stock": stock, "is_active": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAPI_Redeem_Success(t *testing.T) {
	srv := newTestServer(t)
	createTestUser(t, srv, "user-1")
	awardBonus(t, srv, "user-1", 5000)
	seedVoucher(t, srv, 10)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/vouchers/v-1/redeem", map[string]any{
		"user_id": "user-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	redemption := body["redemption"].(map[string]any)
	assert.Equal(t, "issued", redemption["status"])
	assert.Equal(t, float64(3000), redemption["points_spent"])
	assert.NotEmpty(t, redemption["redemption_code"])

	snapshot := body["voucher"].(map[string]any)
	assert.Equal(t, float64(9), snapshot["stock"])

	resp, body = doJSON(t, srv, http.MethodGet, "/api/users/user-1/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2000), body["compassion_points"])

	resp, reds := doJSONList(t, srv, "/api/users/user-1/redemptions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, reds, 1)
}

func TestAPI_Redeem_InsufficientPoints_Conflict(t *testing.T) {
	srv := newTestServer(t)
	createTestUser(t, srv, "user-1")
	awardBonus(t, srv, "user-1", 1000)
	seedVoucher(t, srv, 10)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/vouchers/v-1/redeem", map[string]any{
		"user_id": "user-1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	// Nothing changed.
	resp, body = doJSON(t, srv, http.MethodGet, "/api/users/user-1/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1000), body["compassion_points"])
}

func TestAPI_Redeem_OutOfStock_Conflict(t *testing.T) {
	srv := newTestServer(t)
	createTestUser(t, srv, "user-1")
	awardBonus(t, srv, "user-1", 5000)
	seedVoucher(t, srv, 0)

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/vouchers/v-1/redeem", map[string]any{
		"user_id": "user-1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_Redeem_UnknownVoucher_NotFound(t *testing.T) {
	srv := newTestServer(t)
	createTestUser(t, srv, "user-1")

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/vouchers/ghost/redeem", map[string]any{
		"user_id": "user-1",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListVouchers_RedeemableOnly(t *testing.T) {
	srv := newTestServer(t)
	seedVoucher(t, srv, 10)

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/vouchers", map[string]any{
		"id": "v-empty", "brand_name": "Z", "title": "Sold out",
		"points_cost": 100, "stock": 0, "is_active": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, vouchers := doJSONList(t, srv, "/api/vouchers")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, vouchers, 1)
	assert.Equal(t, "v-1", vouchers[0]["id"])

	resp, vouchers = doJSONList(t, srv, "/api/vouchers?all=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, vouchers, 2)
}

// =============================================================================
// MISSION FLOW
// =============================================================================

func TestAPI_MissionFlow_CreateJoinComplete(t *testing.T) {
	srv := newTestServer(t)
	createTestUser(t, srv, "user-1")

	resp, body := doJSON(t, srv, http.MethodPost, "/api/missions", map[string]any{
		"title": "Beach cleanup", "points_reward": 250, "capacity": 20,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "draft", body["status"])
	missionID := body["id"].(string)

	// Publish, then start
	for _, status := range []string{"published", "ongoing"} {
		resp, body = doJSON(t, srv, http.MethodPost, "/api/missions/"+missionID+"/status",
			map[string]any{"status": status})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, status, body["status"])
	}

	resp, _ = doJSON(t, srv, http.MethodPost, "/api/missions/"+missionID+"/join",
		map[string]any{"user_id": "user-1"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, srv, http.MethodPost, "/api/missions/"+missionID+"/complete",
		map[string]any{"user_id": "user-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(250), body["amount"])
	assert.Equal(t, "mission_completion", body["type"])

	resp, body = doJSON(t, srv, http.MethodGet, "/api/users/user-1/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(250), body["compassion_points"])

	// Double completion is a conflict
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/missions/"+missionID+"/complete",
		map[string]any{"user_id": "user-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_Mission_InvalidTransition_Conflict(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/missions", map[string]any{
		"title": "Park restoration", "points_reward": 100,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	missionID := body["id"].(string)

	resp, _ = doJSON(t, srv, http.MethodPost, "/api/missions/"+missionID+"/status",
		map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_MissionAnalytics_And_Dashboard(t *testing.T) {
	srv := newTestServer(t)
	createTestUser(t, srv, "user-1")

	resp, body := doJSON(t, srv, http.MethodPost, "/api/missions", map[string]any{
		"title": "Beach cleanup", "points_reward": 250, "sponsor_id": "acme",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	missionID := body["id"].(string)

	for _, status := range []string{"published", "ongoing"} {
		resp, _ = doJSON(t, srv, http.MethodPost, "/api/missions/"+missionID+"/status",
			map[string]any{"status": status})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/missions/"+missionID+"/join",
		map[string]any{"user_id": "user-1"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/missions/"+missionID+"/complete",
		map[string]any{"user_id": "user-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = doJSON(t, srv, http.MethodGet, "/api/missions/"+missionID+"/analytics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["participants"])
	assert.Equal(t, float64(1), body["completions"])
	assert.Equal(t, float64(100), body["completion_rate"])
	assert.Equal(t, float64(250), body["points_distributed"])
	assert.Greater(t, body["engagement_score"].(float64), 0.0)

	resp, body = doJSON(t, srv, http.MethodGet, "/api/admin/dashboard?sponsor_id=acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total_missions"])
	assert.Equal(t, float64(1), body["total_participants"])
	assert.Equal(t, float64(250), body["points_distributed"])
	assert.Greater(t, body["impact_score"].(float64), 0.0)
}

// =============================================================================
// GROWTH
// =============================================================================

func TestAPI_Growth_NewUserThisMonth(t *testing.T) {
	// GIVEN: A user whose only earnings are this month
	// THEN: Growth is pinned to 100

	srv := newTestServer(t)
	createTestUser(t, srv, "user-1")
	awardBonus(t, srv, "user-1", 500)

	resp, body := doJSON(t, srv, http.MethodGet, "/api/users/user-1/growth", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(100), body["growth_percent"])
}
