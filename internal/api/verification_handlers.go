package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ghostatlas/ghostatlas/internal/encounter"
	"github.com/ghostatlas/ghostatlas/internal/geo"
	"github.com/ghostatlas/ghostatlas/internal/middleware"
	"github.com/ghostatlas/ghostatlas/internal/verification"
	"github.com/google/uuid"
)

// VerifyRequest represents the request body for POST /encounters/{id}/verify.
// Location carries the visitor's position at the moment of the visit.
type VerifyRequest struct {
	SpookinessScore int                `json:"spookinessScore"`
	Notes           string             `json:"notes,omitempty"`
	Location        encounter.Location `json:"location"`
}

// VerifyResponse represents the response for a successful verification.
type VerifyResponse struct {
	VerificationID string  `json:"verificationId"`
	IsTimeMatched  bool    `json:"isTimeMatched"`
	DistanceMeters float64 `json:"distanceMeters"`
}

// VerificationHandlers holds dependencies for verification HTTP handlers.
type VerificationHandlers struct {
	encounters    encounter.Repository
	verifications verification.Repository
	radiusMeters  float64
	timeNow       func() time.Time // For testability
}

// NewVerificationHandlers creates a new VerificationHandlers instance.
// radiusMeters <= 0 falls back to the default verification radius (50 m).
func NewVerificationHandlers(encounters encounter.Repository, verifications verification.Repository, radiusMeters float64) *VerificationHandlers {
	if radiusMeters <= 0 {
		radiusMeters = geo.DefaultVerificationRadiusMeters
	}
	return &VerificationHandlers{
		encounters:    encounters,
		verifications: verifications,
		radiusMeters:  radiusMeters,
		timeNow:       time.Now,
	}
}

// Verify handles POST /encounters/{id}/verify - records a physical visit.
// The visitor must be within the verification radius of the encounter's
// recorded location; otherwise the request is rejected with NOT_ELIGIBLE.
func (h *VerificationHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deviceID := deviceIDFromRequest(w, r)
	if deviceID == "" {
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if err := verification.ValidateScore(req.SpookinessScore); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "spookinessScore must be between 1 and 5")
		return
	}
	if len(req.Notes) > verification.MaxNotesLength {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "notes must not exceed 500 characters")
		return
	}
	if !geo.ValidCoordinates(req.Location.Latitude, req.Location.Longitude) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "location coordinates are out of range")
		return
	}

	e, err := h.encounters.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, encounter.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Encounter not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load encounter for verification", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record verification")
		return
	}

	eligibility := geo.IsEligible(req.Location.Latitude, req.Location.Longitude,
		e.Location.Latitude, e.Location.Longitude, h.radiusMeters)
	if !eligibility.IsEligible {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotEligible)
		WriteError(w, ctx, http.StatusUnprocessableEntity, ErrCodeNotEligible,
			fmt.Sprintf("Too far from the encounter location (%.0f m away, must be within %.0f m)",
				eligibility.DistanceMeters, h.radiusMeters))
		return
	}

	now := h.timeNow().UTC()
	v := &verification.Verification{
		ID:              uuid.New().String(),
		EncounterID:     id,
		DeviceID:        deviceID,
		SpookinessScore: req.SpookinessScore,
		Notes:           req.Notes,
		Latitude:        req.Location.Latitude,
		Longitude:       req.Location.Longitude,
		DistanceMeters:  eligibility.DistanceMeters,
		TimeMatched:     verification.IsTimeMatched(e.EncounterTime, now),
		CreatedAt:       now,
	}

	if err := h.verifications.Create(r.Context(), v); err != nil {
		if errors.Is(err, verification.ErrAlreadyVerified) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Device already verified this encounter")
			return
		}
		slog.ErrorContext(r.Context(), "failed to create verification", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record verification")
		return
	}

	if err := h.encounters.IncrementVerificationCount(r.Context(), id); err != nil {
		slog.WarnContext(r.Context(), "failed to bump verification count", "encounter_id", id, "error", err)
	}

	WriteJSON(w, r.Context(), http.StatusCreated, VerifyResponse{
		VerificationID: v.ID,
		IsTimeMatched:  v.TimeMatched,
		DistanceMeters: v.DistanceMeters,
	})
}
