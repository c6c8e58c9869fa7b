package api

import (
	"net/http"

	"github.com/ghostatlas/ghostatlas/internal/middleware"
)

// RouterConfig wires handlers and per-route rate limits into the mux.
type RouterConfig struct {
	Encounters    *EncounterHandlers
	Ratings       *RatingHandlers
	Verifications *VerificationHandlers
	Admin         *AdminHandlers
	Health        *HealthHandlers

	// MetricsHandler serves GET /metrics (promhttp). Optional.
	MetricsHandler http.Handler

	// RateLimitStore backs the per-route limiters. Optional; when nil no
	// rate limiting is applied (tests, local development).
	RateLimitStore middleware.RateLimitStore
}

// limited wraps a handler func with a rate limiter when a store is configured.
func (cfg RouterConfig) limited(limit middleware.RateLimitConfig, keyFunc middleware.KeyFunc, h http.HandlerFunc) http.Handler {
	if cfg.RateLimitStore == nil {
		return h
	}
	return middleware.RateLimiter(cfg.RateLimitStore, limit, keyFunc)(h)
}

// NewRouter builds the ServeMux with all API routes.
// Method patterns route per-verb; unmatched paths fall through to a
// structured 404 on the root handler.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	// Public encounter surface.
	mux.Handle("GET /encounters", cfg.limited(
		middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), cfg.Encounters.ListEncounters))
	mux.Handle("POST /encounters", cfg.limited(
		middleware.DefaultSubmitLimit(), middleware.DeviceKeyFunc(), cfg.Encounters.SubmitEncounter))
	mux.Handle("GET /encounters/{id}", cfg.limited(
		middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), cfg.Encounters.GetEncounter))
	mux.Handle("POST /encounters/{id}/rate", cfg.limited(
		middleware.DefaultInteractLimit(), middleware.DeviceKeyFunc(), cfg.Ratings.Rate))
	mux.Handle("POST /encounters/{id}/verify", cfg.limited(
		middleware.DefaultInteractLimit(), middleware.DeviceKeyFunc(), cfg.Verifications.Verify))

	// Moderation surface, JWT-gated.
	mux.HandleFunc("GET /admin/encounters/pending", cfg.Admin.RequireAdmin(cfg.Admin.ListPending))
	mux.HandleFunc("POST /admin/encounters/{id}/approve", cfg.Admin.RequireAdmin(cfg.Admin.Approve))
	mux.HandleFunc("POST /admin/encounters/{id}/reject", cfg.Admin.RequireAdmin(cfg.Admin.Reject))

	// Probes and metrics.
	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	// Structured 404 for everything else.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	})

	return mux
}
