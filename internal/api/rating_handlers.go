package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ghostatlas/ghostatlas/internal/encounter"
	"github.com/ghostatlas/ghostatlas/internal/middleware"
	"github.com/ghostatlas/ghostatlas/internal/rating"
)

// DeviceIDHeader carries the client's self-assigned device identity.
const DeviceIDHeader = "X-Device-ID"

// RateRequest represents the request body for POST /encounters/{id}/rate.
type RateRequest struct {
	Rating int `json:"rating"`
}

// RatingHandlers holds dependencies for rating HTTP handlers.
type RatingHandlers struct {
	encounters encounter.Repository
	ratings    rating.Repository
}

// NewRatingHandlers creates a new RatingHandlers instance.
func NewRatingHandlers(encounters encounter.Repository, ratings rating.Repository) *RatingHandlers {
	return &RatingHandlers{encounters: encounters, ratings: ratings}
}

// deviceIDFromRequest extracts and stores the device ID, writing an error
// response when the header is missing. Returns "" after writing the error.
func deviceIDFromRequest(w http.ResponseWriter, r *http.Request) string {
	deviceID := strings.TrimSpace(r.Header.Get(DeviceIDHeader))
	if deviceID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "X-Device-ID header is required")
		return ""
	}
	middleware.UpdateResponseContext(w, middleware.SetDeviceID(r.Context(), deviceID))
	return deviceID
}

// Rate handles POST /encounters/{id}/rate - records a device's rating.
// A device can rate each encounter once; repeats return 409 CONFLICT.
func (h *RatingHandlers) Rate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deviceID := deviceIDFromRequest(w, r)
	if deviceID == "" {
		return
	}

	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if err := rating.ValidateScore(req.Rating); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "rating must be between 1 and 5")
		return
	}

	if _, err := h.encounters.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, encounter.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Encounter not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load encounter for rating", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record rating")
		return
	}

	agg, err := h.ratings.Add(r.Context(), id, deviceID, req.Rating)
	if err != nil {
		if errors.Is(err, rating.ErrAlreadyRated) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Device already rated this encounter")
			return
		}
		slog.ErrorContext(r.Context(), "failed to add rating", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record rating")
		return
	}

	// Keep the denormalized aggregate on the encounter current. A failure
	// here leaves a stale aggregate, not a lost rating.
	if err := h.encounters.SetRatingAggregate(r.Context(), id, agg.Average, agg.Count); err != nil {
		slog.WarnContext(r.Context(), "failed to update rating aggregate", "encounter_id", id, "error", err)
	}

	WriteJSON(w, r.Context(), http.StatusOK, agg)
}
