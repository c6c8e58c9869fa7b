// Package client is the Go SDK for the GhostAtlas API. It wraps the REST
// surface with retrying requests, a stale-aware query cache, and a local
// device identity store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout is the per-attempt request timeout.
const DefaultTimeout = 30 * time.Second

// Request headers.
const (
	headerRequestID = "X-Request-ID"
	headerDeviceID  = "X-Device-ID"
)

// Client talks to a GhostAtlas API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryPolicy
	deviceID   string
	adminToken string
	cache      *QueryCache

	// sleep is swapped in tests so retry backoff does not slow them down.
	sleep func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithDeviceID sets the device identity sent on rate and verify calls.
func WithDeviceID(id string) Option {
	return func(c *Client) { c.deviceID = id }
}

// WithAdminToken sets the bearer token for the moderation endpoints.
func WithAdminToken(token string) Option {
	return func(c *Client) { c.adminToken = token }
}

// WithQueryCache attaches a query cache for list and detail reads.
func WithQueryCache(qc *QueryCache) Option {
	return func(c *Client) { c.cache = qc }
}

// New creates a Client for the given base URL, e.g. "https://api.ghostatlas.app".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      DefaultRetryPolicy(),
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// send issues one logical request, retrying per the policy. Each attempt
// gets its own timeout and request ID. On success the body is decoded
// into dest when dest is non-nil.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr *APIError
	for attempt := 0; ; attempt++ {
		apiErr := c.attempt(ctx, method, endpoint, payload, dest)
		if apiErr == nil {
			return nil
		}
		lastErr = apiErr

		retry, delay := c.retry.RetryDecision(attempt+1, apiErr.Kind)
		if !retry {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return networkError(ctx.Err())
		default:
		}
		c.sleep(delay)
	}
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte, dest any) *APIError {
	timeout := c.httpClient.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, endpoint, reader)
	if err != nil {
		return networkError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerRequestID, uuid.New().String())
	if c.deviceID != "" {
		req.Header.Set(headerDeviceID, c.deviceID)
	}
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(err)
	}

	if resp.StatusCode >= 400 {
		var envelope serverError
		_ = json.Unmarshal(data, &envelope)
		message := envelope.Message
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &APIError{
			Message:   message,
			ErrorCode: envelope.ErrorCode,
			Status:    resp.StatusCode,
			RequestID: envelope.RequestID,
			Timestamp: envelope.Timestamp,
			Kind:      classifyStatus(resp.StatusCode, envelope.ErrorCode),
		}
	}

	if dest != nil {
		if err := json.Unmarshal(data, dest); err != nil {
			return &APIError{
				Message: fmt.Sprintf("decode response: %v", err),
				Status:  resp.StatusCode,
				Kind:    KindServerError,
			}
		}
	}
	return nil
}

// ListEncounters lists approved encounters near a point. Reads go through
// the query cache when one is attached.
func (c *Client) ListEncounters(ctx context.Context, params SearchParams) (*EncounterList, error) {
	fetch := func() (*EncounterList, error) {
		query := url.Values{}
		query.Set("latitude", strconv.FormatFloat(params.Latitude, 'f', -1, 64))
		query.Set("longitude", strconv.FormatFloat(params.Longitude, 'f', -1, 64))
		if params.RadiusMeters > 0 {
			query.Set("radius", strconv.FormatFloat(params.RadiusMeters, 'f', -1, 64))
		}
		if params.Limit > 0 {
			query.Set("limit", strconv.Itoa(params.Limit))
		}
		if params.NextToken != "" {
			query.Set("nextToken", params.NextToken)
		}

		var list EncounterList
		if err := c.send(ctx, http.MethodGet, "/encounters", query, nil, &list); err != nil {
			return nil, err
		}
		return &list, nil
	}

	if c.cache == nil {
		return fetch()
	}
	return cachedFetch(c.cache, listQueryKey(params), fetch)
}

// GetEncounter fetches one encounter with its verifications.
func (c *Client) GetEncounter(ctx context.Context, id string) (*EncounterDetail, error) {
	fetch := func() (*EncounterDetail, error) {
		var detail EncounterDetail
		if err := c.send(ctx, http.MethodGet, "/encounters/"+url.PathEscape(id), nil, nil, &detail); err != nil {
			return nil, err
		}
		return &detail, nil
	}

	if c.cache == nil {
		return fetch()
	}
	return cachedFetch(c.cache, detailQueryKey(id), fetch)
}

// SubmitEncounter submits a new encounter story. The returned upload URLs
// are presigned PUT targets for the declared images.
func (c *Client) SubmitEncounter(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.send(ctx, http.MethodPost, "/encounters", nil, req, &resp); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.InvalidateLists()
	}
	return &resp, nil
}

// RateEncounter rates an encounter 1-5 from this device. A second rating
// from the same device fails with ErrorCode "CONFLICT".
func (c *Client) RateEncounter(ctx context.Context, id string, rating int) (*RatingAggregate, error) {
	var agg RatingAggregate
	body := map[string]int{"rating": rating}
	if err := c.send(ctx, http.MethodPost, "/encounters/"+url.PathEscape(id)+"/rate", nil, body, &agg); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.InvalidateEncounter(id)
	}
	return &agg, nil
}

// VerifyEncounter records a physical visit to the encounter site. The
// server rejects visits outside the verification radius with ErrorCode
// "NOT_ELIGIBLE".
func (c *Client) VerifyEncounter(ctx context.Context, id string, req VerifyRequest) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.send(ctx, http.MethodPost, "/encounters/"+url.PathEscape(id)+"/verify", nil, req, &resp); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.InvalidateEncounter(id)
	}
	return &resp, nil
}

// ListPending lists encounters awaiting moderation. Requires an admin token.
func (c *Client) ListPending(ctx context.Context, limit int, nextToken string) (*EncounterList, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if nextToken != "" {
		query.Set("nextToken", nextToken)
	}

	var list EncounterList
	if err := c.send(ctx, http.MethodGet, "/admin/encounters/pending", query, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ApproveEncounter approves an enhanced encounter. Requires an admin token.
func (c *Client) ApproveEncounter(ctx context.Context, id, reason string) (*Encounter, error) {
	return c.moderate(ctx, id, "approve", reason)
}

// RejectEncounter rejects an encounter. Requires an admin token.
func (c *Client) RejectEncounter(ctx context.Context, id, reason string) (*Encounter, error) {
	return c.moderate(ctx, id, "reject", reason)
}

func (c *Client) moderate(ctx context.Context, id, decision, reason string) (*Encounter, error) {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}

	var e Encounter
	path := "/admin/encounters/" + url.PathEscape(id) + "/" + decision
	if err := c.send(ctx, http.MethodPost, path, nil, body, &e); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.InvalidateEncounter(id)
	}
	return &e, nil
}
