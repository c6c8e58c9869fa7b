package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/encounters", "/encounters"},
		{"/encounters/9d2f1a34-0000-0000-0000-000000000001", "/encounters/{id}"},
		{"/encounters/abc/rate", "/encounters/{id}/rate"},
		{"/encounters/abc/verify", "/encounters/{id}/verify"},
		{"/admin/encounters/pending", "/admin/encounters/pending"},
		{"/admin/encounters/abc", "/admin/encounters/{id}"},
		{"/admin/encounters/abc/approve", "/admin/encounters/{id}/approve"},
		{"/admin/encounters/abc/reject", "/admin/encounters/{id}/reject"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/unknown/route", "/unknown/route"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestHTTPMetricsRecordsRequest(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/encounters/abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	count := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/encounters/{id}", "200"))
	if count != 1 {
		t.Errorf("http_requests_total = %v, want 1", count)
	}
}

func TestHTTPMetricsSkipsHealthEndpoints(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	if n := testutil.CollectAndCount(metrics.httpRequestsTotal); n != 0 {
		t.Errorf("health endpoints recorded %d series, want 0", n)
	}
}

func TestMetricsRegisterTwiceFails(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := metrics.Register(reg); err == nil {
		t.Error("second Register should fail")
	}
}
