package client

import "fmt"

// ErrorKind classifies an APIError for retry and UI decisions.
type ErrorKind string

// Error kinds.
const (
	KindNetworkFailure    ErrorKind = "network_failure"
	KindServerError       ErrorKind = "server_error"
	KindClientError       ErrorKind = "client_error"
	KindValidationFailure ErrorKind = "validation_failure"
)

// APIError is the normalized error for every failed call. Callers branch
// on ErrorCode for specific server responses (e.g. "CONFLICT" when a
// device already rated an encounter) and on Kind for coarse handling.
type APIError struct {
	Message   string
	ErrorCode string
	Status    int
	RequestID string
	Timestamp string
	Kind      ErrorKind
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("api error %s (status %d): %s", e.ErrorCode, e.Status, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// classifyStatus maps an HTTP status and server error code to a Kind.
func classifyStatus(status int, errorCode string) ErrorKind {
	switch {
	case status >= 500:
		return KindServerError
	case errorCode == "VALIDATION_ERROR":
		return KindValidationFailure
	default:
		return KindClientError
	}
}

// networkError wraps a transport-level failure as an APIError.
func networkError(err error) *APIError {
	return &APIError{
		Message: err.Error(),
		Kind:    KindNetworkFailure,
	}
}
