package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ghostatlas/ghostatlas/internal/auth"
	"github.com/ghostatlas/ghostatlas/internal/cache"
	"github.com/ghostatlas/ghostatlas/internal/encounter"
	"github.com/ghostatlas/ghostatlas/internal/middleware"
)

// ModerateRequest is the optional body for approve/reject.
type ModerateRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AdminHandlers holds dependencies for the moderation surface.
type AdminHandlers struct {
	encounters encounter.Repository
	jwt        *auth.JWTService
	cache      *cache.Cache
}

// NewAdminHandlers creates a new AdminHandlers instance.
func NewAdminHandlers(encounters encounter.Repository, jwt *auth.JWTService) *AdminHandlers {
	return &AdminHandlers{encounters: encounters, jwt: jwt}
}

// WithCache attaches a response cache so moderation decisions invalidate
// stale list entries.
func (h *AdminHandlers) WithCache(c *cache.Cache) *AdminHandlers {
	h.cache = c
	return h
}

// RequireAdmin wraps a handler with bearer-token admin authentication.
func (h *AdminHandlers) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnauthorized)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeUnauthorized, "Missing bearer token")
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := h.jwt.ValidateToken(token)
		if err != nil {
			code := ErrCodeUnauthorized
			message := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				message = "Token has expired"
			}
			ctx := middleware.SetErrorCode(r.Context(), code)
			WriteError(w, ctx, http.StatusUnauthorized, code, message)
			return
		}

		next(w, r.WithContext(middleware.SetDeviceID(r.Context(), claims.Subject)))
	}
}

// ListPending handles GET /admin/encounters/pending - encounters awaiting
// moderation (pending, enhancing, or enhanced).
func (h *AdminHandlers) ListPending(w http.ResponseWriter, r *http.Request) {
	cursor, err := encounter.DecodeCursor(r.URL.Query().Get("nextToken"))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid nextToken")
		return
	}

	page, next, err := h.encounters.ListPending(r.Context(), parseLimit(r), cursor)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list pending encounters", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list pending encounters")
		return
	}

	resp := EncounterListResponse{Encounters: page}
	if resp.Encounters == nil {
		resp.Encounters = []*encounter.Encounter{}
	}
	resp.Count = len(resp.Encounters)
	if next != nil {
		resp.NextToken = encounter.EncodeCursor(next)
	}
	WriteJSON(w, r.Context(), http.StatusOK, resp)
}

// moderate applies a terminal moderation decision to an encounter.
func (h *AdminHandlers) moderate(w http.ResponseWriter, r *http.Request, next encounter.Status) {
	id := r.PathValue("id")

	// Body is optional; a reason may accompany the decision.
	var req ModerateRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.encounters.UpdateStatus(r.Context(), id, next); err != nil {
		switch {
		case errors.Is(err, encounter.ErrNotFound):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Encounter not found")
		case errors.Is(err, encounter.ErrInvalidTransition):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict,
				"Encounter is not in a state that allows this decision")
		default:
			slog.ErrorContext(r.Context(), "failed to moderate encounter", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update encounter")
		}
		return
	}

	slog.InfoContext(r.Context(), "encounter moderated",
		"encounter_id", id, "decision", string(next), "reason", req.Reason)

	if h.cache != nil {
		h.cache.InvalidateEncounter(r.Context(), id)
	}

	e, err := h.encounters.GetByID(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to reload moderated encounter", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load encounter")
		return
	}
	WriteJSON(w, r.Context(), http.StatusOK, e)
}

// Approve handles POST /admin/encounters/{id}/approve.
// Only enhanced encounters can be approved.
func (h *AdminHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, encounter.StatusApproved)
}

// Reject handles POST /admin/encounters/{id}/reject.
func (h *AdminHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, encounter.StatusRejected)
}
