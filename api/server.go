/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/*        Accounts, balance, history, growth
  /api/leaderboard    Top balances
  /api/vouchers/*     Catalog and redemption
  /api/missions/*     Lifecycle, participation, analytics
  /api/admin/*        Bonus, adjustments, dashboard

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Get("/{id}/growth", h.GetGrowth)
			r.Get("/{id}/redemptions", h.GetRedemptions)
		})

		r.Get("/leaderboard", h.GetLeaderboard)

		// Voucher routes
		r.Route("/vouchers", func(r chi.Router) {
			r.Get("/", h.ListVouchers)
			r.Post("/", h.CreateVoucher)
			r.Post("/{id}/redeem", h.RedeemVoucher)
		})

		// Mission routes
		r.Route("/missions", func(r chi.Router) {
			r.Get("/", h.ListMissions)
			r.Post("/", h.CreateMission)
			r.Get("/{id}", h.GetMission)
			r.Post("/{id}/status", h.TransitionMission)
			r.Post("/{id}/join", h.JoinMission)
			r.Post("/{id}/complete", h.CompleteMission)
			r.Get("/{id}/analytics", h.GetMissionAnalytics)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/bonus", h.AwardBonus)
			r.Post("/adjustments", h.CreateAdjustment)
			r.Get("/dashboard", h.GetDashboard)
		})
	})

	return r
}
