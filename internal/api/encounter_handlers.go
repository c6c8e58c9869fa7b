// Package api provides HTTP handlers for the GhostAtlas API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ghostatlas/ghostatlas/internal/cache"
	"github.com/ghostatlas/ghostatlas/internal/encounter"
	"github.com/ghostatlas/ghostatlas/internal/geo"
	"github.com/ghostatlas/ghostatlas/internal/middleware"
	"github.com/ghostatlas/ghostatlas/internal/upload"
	"github.com/ghostatlas/ghostatlas/internal/verification"
	"github.com/google/uuid"
)

// Story and author constraints.
const (
	MinStoryLength      = 10
	MaxStoryLength      = 10000
	MaxAuthorNameLength = 100
	MaxImagesPerStory   = 5
)

// Search parameter bounds. Out-of-range values are clamped, not rejected.
const (
	DefaultSearchRadiusMeters = 5000.0
	DefaultPageLimit          = 20
	MaxPageLimit              = 100
)

// URLSigner produces presigned upload URLs for declared encounter photos.
// Implemented by upload.Service; faked in tests.
type URLSigner interface {
	GenerateSignedURL(ctx context.Context, req upload.SignedURLRequest) (*upload.SignedURLResponse, error)
}

// ImageDeclaration describes one photo the client intends to upload.
type ImageDeclaration struct {
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// SubmitEncounterRequest represents the request body for POST /encounters.
type SubmitEncounterRequest struct {
	AuthorName    string             `json:"authorName"`
	Location      encounter.Location `json:"location"`
	OriginalStory string             `json:"originalStory"`
	EncounterTime time.Time          `json:"encounterTime"`
	Images        []ImageDeclaration `json:"images,omitempty"`
}

// UploadSlot is one presigned upload target in the submit response.
type UploadSlot struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	PublicURL string `json:"publicUrl"`
	ExpiresAt string `json:"expiresAt"`
}

// SubmitEncounterResponse represents the response for POST /encounters.
type SubmitEncounterResponse struct {
	EncounterID string       `json:"encounterId"`
	UploadURLs  []UploadSlot `json:"uploadUrls"`
}

// EncounterListResponse is the paginated list envelope. Count is the number
// of encounters in this page, not the total match count.
type EncounterListResponse struct {
	Encounters []*encounter.Encounter `json:"encounters"`
	Count      int                    `json:"count"`
	NextToken  string                 `json:"nextToken,omitempty"`
}

// EncounterDetailResponse is the detail view including verifications.
type EncounterDetailResponse struct {
	*encounter.Encounter
	Verifications []*verification.Verification `json:"verifications"`
}

// EncounterHandlers holds dependencies for encounter HTTP handlers.
type EncounterHandlers struct {
	repo      encounter.Repository
	verRepo   verification.Repository
	signer    URLSigner
	listCache *cache.Cache
}

// NewEncounterHandlers creates a new EncounterHandlers instance.
// signer may be nil when object storage is not configured; submissions then
// return no upload URLs.
func NewEncounterHandlers(repo encounter.Repository, verRepo verification.Repository, signer URLSigner) *EncounterHandlers {
	return &EncounterHandlers{repo: repo, verRepo: verRepo, signer: signer}
}

// WithListCache attaches a response cache for nearby list reads.
func (h *EncounterHandlers) WithListCache(c *cache.Cache) *EncounterHandlers {
	h.listCache = c
	return h
}

// validateSubmit returns an error message for invalid submissions,
// empty string if valid.
func validateSubmit(req *SubmitEncounterRequest) string {
	if strings.TrimSpace(req.AuthorName) == "" {
		return "authorName is required"
	}
	if len(req.AuthorName) > MaxAuthorNameLength {
		return "authorName must not exceed 100 characters"
	}
	story := strings.TrimSpace(req.OriginalStory)
	if len(story) < MinStoryLength {
		return "originalStory must be at least 10 characters"
	}
	if len(story) > MaxStoryLength {
		return "originalStory must not exceed 10000 characters"
	}
	if !geo.ValidCoordinates(req.Location.Latitude, req.Location.Longitude) {
		return "location coordinates are out of range"
	}
	if req.EncounterTime.IsZero() {
		return "encounterTime is required"
	}
	if len(req.Images) > MaxImagesPerStory {
		return "at most 5 images per encounter"
	}
	return ""
}

// SubmitEncounter handles POST /encounters - submits a new encounter story.
// The encounter enters the lifecycle at pending and is invisible to public
// listings until approved.
func (h *EncounterHandlers) SubmitEncounter(w http.ResponseWriter, r *http.Request) {
	var req SubmitEncounterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if errMsg := validateSubmit(&req); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	encounterID := uuid.New().String()

	// Presign one upload slot per declared image.
	slots := make([]UploadSlot, 0, len(req.Images))
	imageURLs := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		if h.signer == nil {
			break
		}
		signed, err := h.signer.GenerateSignedURL(r.Context(), upload.SignedURLRequest{
			ContentType: img.ContentType,
			SizeBytes:   img.SizeBytes,
			EncounterID: &encounterID,
		})
		if err != nil {
			switch {
			case errors.Is(err, upload.ErrUnsupportedType):
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnsupportedType)
				WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedType,
					"Unsupported image type. Allowed types: image/jpeg, image/png, image/webp")
				return
			case errors.Is(err, upload.ErrFileTooLarge):
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
				WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Image size exceeds maximum allowed")
				return
			default:
				slog.ErrorContext(r.Context(), "failed to presign upload", "error", err)
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
				WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to generate upload URL")
				return
			}
		}
		slots = append(slots, UploadSlot{
			URL:       signed.URL,
			Key:       signed.Key,
			PublicURL: signed.PublicURL,
			ExpiresAt: signed.ExpiresAt.UTC().Format(time.RFC3339),
		})
		imageURLs = append(imageURLs, signed.PublicURL)
	}

	now := time.Now().UTC()
	e := &encounter.Encounter{
		ID:            encounterID,
		AuthorName:    html.EscapeString(strings.TrimSpace(req.AuthorName)),
		Location:      req.Location,
		OriginalStory: strings.TrimSpace(req.OriginalStory),
		EncounterTime: req.EncounterTime,
		ImageURLs:     imageURLs,
		Status:        encounter.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.repo.Create(r.Context(), e); err != nil {
		slog.ErrorContext(r.Context(), "failed to create encounter", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create encounter")
		return
	}

	WriteJSON(w, r.Context(), http.StatusCreated, SubmitEncounterResponse{
		EncounterID: encounterID,
		UploadURLs:  slots,
	})
}

// parseFloat parses a query parameter as float64, returning def when absent
// or malformed.
func parseFloat(r *http.Request, name string, def float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// parseLimit clamps the limit query parameter into [1, MaxPageLimit].
func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultPageLimit
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return DefaultPageLimit
	}
	if v > MaxPageLimit {
		return MaxPageLimit
	}
	return v
}

// ListEncounters handles GET /encounters - lists approved encounters near a point.
// Out-of-range search parameters are clamped rather than rejected.
func (h *EncounterHandlers) ListEncounters(w http.ResponseWriter, r *http.Request) {
	lat := geo.ClampLatitude(parseFloat(r, "latitude", 0))
	lon := geo.ClampLongitude(parseFloat(r, "longitude", 0))
	radius := geo.ClampRadius(parseFloat(r, "radius", DefaultSearchRadiusMeters), DefaultSearchRadiusMeters)

	token := r.URL.Query().Get("nextToken")
	cursor, err := encounter.DecodeCursor(token)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid nextToken")
		return
	}
	limit := parseLimit(r)

	var cacheKey string
	if h.listCache != nil {
		cacheKey = cache.NearbyKey(lat, lon, radius, limit, token)
		var cached EncounterListResponse
		if h.listCache.Get(r.Context(), cacheKey, &cached) {
			WriteJSON(w, r.Context(), http.StatusOK, cached)
			return
		}
	}

	page, next, err := h.repo.ListNearby(r.Context(), encounter.NearbyQuery{
		Latitude:     lat,
		Longitude:    lon,
		RadiusMeters: radius,
		Limit:        limit,
		Cursor:       cursor,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list encounters", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list encounters")
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
	if h.listCache != nil {
		h.listCache.Set(r.Context(), cacheKey, resp)
	}
	WriteJSON(w, r.Context(), http.StatusOK, resp)
}

// GetEncounter handles GET /encounters/{id} - encounter detail with verifications.
func (h *EncounterHandlers) GetEncounter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	e, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, encounter.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Encounter not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get encounter", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to get encounter")
		return
	}

	vers, err := h.verRepo.ListByEncounter(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list verifications", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to get encounter")
		return
	}
	if vers == nil {
		vers = []*verification.Verification{}
	}

	WriteJSON(w, r.Context(), http.StatusOK, EncounterDetailResponse{
		Encounter:     e,
		Verifications: vers,
	})
}
