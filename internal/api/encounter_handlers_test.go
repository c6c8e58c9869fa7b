package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ghostatlas/ghostatlas/internal/cache"
	"github.com/ghostatlas/ghostatlas/internal/encounter"
	"github.com/ghostatlas/ghostatlas/internal/upload"
	"github.com/ghostatlas/ghostatlas/internal/verification"
)

// fakeSigner returns deterministic presigned URLs without hitting storage.
type fakeSigner struct {
	err   error
	calls int
}

func (f *fakeSigner) GenerateSignedURL(_ context.Context, req upload.SignedURLRequest) (*upload.SignedURLResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	key := fmt.Sprintf("encounters/%s/img-%d.jpg", *req.EncounterID, f.calls)
	return &upload.SignedURLResponse{
		URL:       "https://storage.example/put/" + key,
		Key:       key,
		PublicURL: "https://media.example/" + key,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}, nil
}

func newTestEncounterHandlers(signer URLSigner) (*EncounterHandlers, *encounter.InMemoryRepository, *verification.InMemoryRepository) {
	repo := encounter.NewInMemoryRepository()
	verRepo := verification.NewInMemoryRepository()
	return NewEncounterHandlers(repo, verRepo, signer), repo, verRepo
}

func validSubmitBody() map[string]any {
	return map[string]any{
		"authorName":    "Mina",
		"location":      map[string]any{"latitude": 37.7749, "longitude": -122.4194, "address": "Alcatraz"},
		"originalStory": "A cold hand brushed my shoulder on the empty cell block.",
		"encounterTime": time.Date(2025, 10, 31, 23, 0, 0, 0, time.UTC),
	}
}

func doSubmit(t *testing.T, h *EncounterHandlers, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/encounters", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.SubmitEncounter(rec, req)
	return rec
}

func TestSubmitEncounter(t *testing.T) {
	h, repo, _ := newTestEncounterHandlers(&fakeSigner{})

	rec := doSubmit(t, h, validSubmitBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp SubmitEncounterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.EncounterID == "" {
		t.Fatal("empty encounterId")
	}

	stored, err := repo.GetByID(context.Background(), resp.EncounterID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != encounter.StatusPending {
		t.Errorf("status = %q, want pending", stored.Status)
	}
	if stored.AuthorName != "Mina" {
		t.Errorf("authorName = %q", stored.AuthorName)
	}
}

func TestSubmitEncounterWithImages(t *testing.T) {
	h, repo, _ := newTestEncounterHandlers(&fakeSigner{})

	body := validSubmitBody()
	body["images"] = []map[string]any{
		{"contentType": "image/jpeg", "sizeBytes": 1024},
		{"contentType": "image/png", "sizeBytes": 2048},
	}
	rec := doSubmit(t, h, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp SubmitEncounterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.UploadURLs) != 2 {
		t.Fatalf("uploadUrls = %d, want 2", len(resp.UploadURLs))
	}

	stored, err := repo.GetByID(context.Background(), resp.EncounterID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(stored.ImageURLs) != 2 {
		t.Errorf("stored imageUrls = %d, want 2", len(stored.ImageURLs))
	}
}

func TestSubmitEncounterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing author", func(b map[string]any) { b["authorName"] = "" }},
		{"short story", func(b map[string]any) { b["originalStory"] = "boo" }},
		{"long story", func(b map[string]any) { b["originalStory"] = strings.Repeat("a", 10001) }},
		{"bad latitude", func(b map[string]any) {
			b["location"] = map[string]any{"latitude": 91.0, "longitude": 0.0}
		}},
		{"missing time", func(b map[string]any) { delete(b, "encounterTime") }},
		{"too many images", func(b map[string]any) {
			imgs := make([]map[string]any, 6)
			for i := range imgs {
				imgs[i] = map[string]any{"contentType": "image/jpeg", "sizeBytes": 100}
			}
			b["images"] = imgs
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestEncounterHandlers(&fakeSigner{})
			body := validSubmitBody()
			tt.mutate(body)

			rec := doSubmit(t, h, body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.ErrorCode != ErrCodeValidation {
				t.Errorf("errorCode = %q, want VALIDATION_ERROR", resp.ErrorCode)
			}
		})
	}
}

func TestSubmitEncounterInvalidJSON(t *testing.T) {
	h, _, _ := newTestEncounterHandlers(&fakeSigner{})

	req := httptest.NewRequest(http.MethodPost, "/encounters", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.SubmitEncounter(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// seedApproved inserts an approved encounter at the given coordinates.
func seedApproved(t *testing.T, repo *encounter.InMemoryRepository, id string, lat, lon float64, createdAt time.Time) {
	t.Helper()
	err := repo.Create(context.Background(), &encounter.Encounter{
		ID:            id,
		AuthorName:    "seed",
		Location:      encounter.Location{Latitude: lat, Longitude: lon},
		OriginalStory: "an unexplained chill in the air",
		EncounterTime: createdAt,
		Status:        encounter.StatusApproved,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestListEncountersNearby(t *testing.T) {
	h, repo, _ := newTestEncounterHandlers(nil)

	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	seedApproved(t, repo, "near-1", 37.7749, -122.4194, base)
	seedApproved(t, repo, "near-2", 37.7750, -122.4195, base.Add(time.Minute))
	seedApproved(t, repo, "far-1", 34.0522, -118.2437, base) // Los Angeles

	req := httptest.NewRequest(http.MethodGet,
		"/encounters?latitude=37.7749&longitude=-122.4194&radius=1000", nil)
	rec := httptest.NewRecorder()
	h.ListEncounters(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp EncounterListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Encounters) != 2 {
		t.Fatalf("encounters = %d, want 2", len(resp.Encounters))
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
	// Newest first.
	if resp.Encounters[0].ID != "near-2" {
		t.Errorf("first = %q, want near-2", resp.Encounters[0].ID)
	}
}

func TestListEncountersPagination(t *testing.T) {
	h, repo, _ := newTestEncounterHandlers(nil)

	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedApproved(t, repo, fmt.Sprintf("e-%d", i), 37.7749, -122.4194, base.Add(time.Duration(i)*time.Minute))
	}

	req := httptest.NewRequest(http.MethodGet,
		"/encounters?latitude=37.7749&longitude=-122.4194&radius=1000&limit=2", nil)
	rec := httptest.NewRecorder()
	h.ListEncounters(rec, req)

	var page1 EncounterListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &page1); err != nil {
		t.Fatalf("unmarshal page 1: %v", err)
	}
	if len(page1.Encounters) != 2 || page1.NextToken == "" {
		t.Fatalf("page 1: %d encounters, token %q", len(page1.Encounters), page1.NextToken)
	}

	req = httptest.NewRequest(http.MethodGet,
		"/encounters?latitude=37.7749&longitude=-122.4194&radius=1000&limit=2&nextToken="+page1.NextToken, nil)
	rec = httptest.NewRecorder()
	h.ListEncounters(rec, req)

	var page2 EncounterListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &page2); err != nil {
		t.Fatalf("unmarshal page 2: %v", err)
	}
	if len(page2.Encounters) != 1 {
		t.Fatalf("page 2: %d encounters, want 1", len(page2.Encounters))
	}
	if page2.Encounters[0].ID == page1.Encounters[0].ID || page2.Encounters[0].ID == page1.Encounters[1].ID {
		t.Error("page 2 repeats a page 1 encounter")
	}
}

func TestListEncountersCached(t *testing.T) {
	h, repo, _ := newTestEncounterHandlers(nil)
	h.WithListCache(cache.New(cache.NewInMemoryStore(), time.Minute, nil))

	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	seedApproved(t, repo, "e-1", 37.7749, -122.4194, base)

	url := "/encounters?latitude=37.7749&longitude=-122.4194&radius=1000"
	rec := httptest.NewRecorder()
	h.ListEncounters(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	// A later insert is invisible until the entry expires.
	seedApproved(t, repo, "e-2", 37.7749, -122.4194, base.Add(time.Minute))

	rec = httptest.NewRecorder()
	h.ListEncounters(rec, httptest.NewRequest(http.MethodGet, url, nil))

	var resp EncounterListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Encounters) != 1 {
		t.Errorf("encounters = %d, want 1 from cache", len(resp.Encounters))
	}
}

func TestListEncountersInvalidToken(t *testing.T) {
	h, _, _ := newTestEncounterHandlers(nil)

	req := httptest.NewRequest(http.MethodGet, "/encounters?nextToken=%21%21%21", nil)
	rec := httptest.NewRecorder()
	h.ListEncounters(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListEncountersClampsParams(t *testing.T) {
	h, repo, _ := newTestEncounterHandlers(nil)
	seedApproved(t, repo, "e-1", 89.9999, 0, time.Now().UTC())

	// latitude=95 clamps to 90; radius=9999999 clamps to 500km.
	req := httptest.NewRequest(http.MethodGet,
		"/encounters?latitude=95&longitude=0&radius=9999999", nil)
	rec := httptest.NewRecorder()
	h.ListEncounters(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (params clamped, not rejected)", rec.Code)
	}
	var resp EncounterListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Encounters) != 1 {
		t.Errorf("encounters = %d, want 1", len(resp.Encounters))
	}
}

func TestGetEncounterDetail(t *testing.T) {
	h, repo, verRepo := newTestEncounterHandlers(nil)

	now := time.Now().UTC()
	seedApproved(t, repo, "e-1", 37.7749, -122.4194, now)
	err := verRepo.Create(context.Background(), &verification.Verification{
		ID: "v-1", EncounterID: "e-1", DeviceID: "d-1",
		SpookinessScore: 4, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed verification: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/encounters/e-1", nil)
	req.SetPathValue("id", "e-1")
	rec := httptest.NewRecorder()
	h.GetEncounter(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		ID            string                       `json:"id"`
		Verifications []*verification.Verification `json:"verifications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != "e-1" {
		t.Errorf("id = %q", resp.ID)
	}
	if len(resp.Verifications) != 1 {
		t.Errorf("verifications = %d, want 1", len(resp.Verifications))
	}
}

func TestGetEncounterNotFound(t *testing.T) {
	h, _, _ := newTestEncounterHandlers(nil)

	req := httptest.NewRequest(http.MethodGet, "/encounters/nope", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	h.GetEncounter(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ErrorCode != ErrCodeNotFound {
		t.Errorf("errorCode = %q, want NOT_FOUND", resp.ErrorCode)
	}
}
