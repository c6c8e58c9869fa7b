package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.URL, opts...)
	c.sleep = func(time.Duration) {}
	return c
}

func TestListEncounters(t *testing.T) {
	var gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID header")
		}
		json.NewEncoder(w).Encode(EncounterList{
			Encounters: []*Encounter{{ID: "e-1"}},
			NextToken:  "next",
		})
	}))

	list, err := c.ListEncounters(context.Background(), SearchParams{Latitude: 37.7749, Longitude: -122.4194})
	if err != nil {
		t.Fatalf("ListEncounters: %v", err)
	}
	if gotPath != "/encounters" {
		t.Errorf("path = %q", gotPath)
	}
	if len(list.Encounters) != 1 || list.NextToken != "next" {
		t.Errorf("list = %+v", list)
	}
}

// The fixtures below are raw JSON in the server's shape, so a drift between
// the client structs and the wire field names fails here instead of silently
// decoding zero values.

func TestRateEncounterDecodesServerBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"averageRating":4.5,"ratingCount":2}`))
	}))

	agg, err := c.RateEncounter(context.Background(), "e-1", 5)
	if err != nil {
		t.Fatalf("RateEncounter: %v", err)
	}
	if agg.Average != 4.5 || agg.Count != 2 {
		t.Errorf("aggregate = %+v, want average 4.5 count 2", agg)
	}
}

func TestListEncountersDecodesServerBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"encounters":[{"id":"e-1","status":"approved"}],"count":1,"nextToken":"next"}`))
	}))

	list, err := c.ListEncounters(context.Background(), SearchParams{})
	if err != nil {
		t.Fatalf("ListEncounters: %v", err)
	}
	if list.Count != 1 || len(list.Encounters) != 1 || list.NextToken != "next" {
		t.Errorf("list = %+v", list)
	}
	if list.Encounters[0].ID != "e-1" {
		t.Errorf("encounter id = %q", list.Encounters[0].ID)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.ListEncounters(context.Background(), SearchParams{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d", apiErr.Status)
	}
	// Initial attempt plus MaxRetries.
	if got := calls.Load(); got != 4 {
		t.Errorf("calls = %d, want 4", got)
	}
}

func TestRecoversAfterRetry(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(EncounterList{})
	}))

	if _, err := c.ListEncounters(context.Background(), SearchParams{}); err != nil {
		t.Fatalf("ListEncounters: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(serverError{
			ErrorCode: "CONFLICT",
			Message:   "This device has already rated this encounter",
			RequestID: "req-1",
		})
	}))

	_, err := c.RateEncounter(context.Background(), "e-1", 4)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.ErrorCode != "CONFLICT" || apiErr.Kind != KindClientError {
		t.Errorf("errorCode = %q kind = %s", apiErr.ErrorCode, apiErr.Kind)
	}
	if apiErr.RequestID != "req-1" {
		t.Errorf("requestId = %q", apiErr.RequestID)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 409)", calls.Load())
	}
}

func TestValidationFailureKind(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(serverError{ErrorCode: "VALIDATION_ERROR", Message: "story too short"})
	}))

	_, err := c.SubmitEncounter(context.Background(), SubmitRequest{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Kind != KindValidationFailure {
		t.Errorf("kind = %s, want validation_failure", apiErr.Kind)
	}
}

func TestNetworkFailureKind(t *testing.T) {
	c := New("http://127.0.0.1:1") // nothing listening
	c.sleep = func(time.Duration) {}

	_, err := c.GetEncounter(context.Background(), "e-1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Kind != KindNetworkFailure {
		t.Errorf("kind = %s, want network_failure", apiErr.Kind)
	}
}

func TestDeviceAndAdminHeaders(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Device-ID") != "device-1" {
			t.Errorf("deviceId header = %q", r.Header.Get("X-Device-ID"))
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("authorization header = %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(Encounter{ID: "e-1", Status: "approved"})
	}), WithDeviceID("device-1"), WithAdminToken("tok"))

	e, err := c.ApproveEncounter(context.Background(), "e-1", "great story")
	if err != nil {
		t.Fatalf("ApproveEncounter: %v", err)
	}
	if e.Status != "approved" {
		t.Errorf("status = %q", e.Status)
	}
}

func TestVerifyNotEligible(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(serverError{ErrorCode: "NOT_ELIGIBLE", Message: "too far from the site"})
	}))

	_, err := c.VerifyEncounter(context.Background(), "e-1", VerifyRequest{SpookinessScore: 4})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.ErrorCode != "NOT_ELIGIBLE" || apiErr.Status != 422 {
		t.Errorf("errorCode = %q status = %d", apiErr.ErrorCode, apiErr.Status)
	}
}
