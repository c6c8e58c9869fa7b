// Package api provides HTTP handlers for the GhostAtlas API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ghostatlas/ghostatlas/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "BAD_REQUEST"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeConflict indicates a conflict with the current state,
	// such as a duplicate rating or verification from the same device.
	ErrCodeConflict = "CONFLICT"

	// ErrCodeNotEligible indicates the device is outside the physical
	// verification radius for the encounter.
	ErrCodeNotEligible = "NOT_ELIGIBLE"

	// ErrCodeUnauthorized indicates missing or invalid credentials.
	ErrCodeUnauthorized = "UNAUTHORIZED"

	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden = "FORBIDDEN"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "RATE_LIMITED"

	// ErrCodeUnsupportedType indicates an unsupported content type for upload.
	ErrCodeUnsupportedType = "UNSUPPORTED_TYPE"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "INTERNAL_ERROR"
)

// ErrorResponse is the envelope every API error returns:
// {"errorCode": "...", "message": "...", "timestamp": "...", "requestId": "..."}
type ErrorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}

// WriteError writes a standardized JSON error response.
//
// The error code will be automatically logged by the logging middleware
// for all 4xx and 5xx responses if you call SetErrorCode on the context
// and pass the updated context to WriteError.
//
// Example:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Encounter not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	// Hand the context back to the logging middleware for error_code capture.
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		ErrorCode: code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: middleware.GetRequestID(ctx),
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// WriteJSON writes a JSON success response with the given status code.
func WriteJSON(w http.ResponseWriter, ctx context.Context, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeUnsupportedType:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeNotEligible:
		return http.StatusUnprocessableEntity
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
