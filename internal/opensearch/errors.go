package opensearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ca-srg/hybridgate/internal/types"
)

type SearchError struct {
	Type       types.ErrorType `json:"type"`
	Message    string          `json:"message"`
	StatusCode int             `json:"status_code,omitempty"`
	Retryable  bool            `json:"retryable"`
	RetryAfter time.Duration   `json:"retry_after,omitempty"`
	Suggestion string          `json:"suggestion,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Err        error           `json:"-"`
}

func (e *SearchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s] %s (HTTP %d)", e.Type, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

func (e *SearchError) IsRetryable() bool {
	return e.Retryable
}

// Timeout reports whether the error was caused by a timeout.
func (e *SearchError) Timeout() bool {
	return e.Type == types.ErrorTypeNetworkTimeout || e.Type == types.ErrorTypeTimeout
}

func NewSearchError(errType types.ErrorType, message string) *SearchError {
	return &SearchError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func ClassifyHTTPError(statusCode int, body string) *SearchError {
	e := &SearchError{StatusCode: statusCode, Timestamp: time.Now()}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Type = types.ErrorTypeAuthentication
		e.Message = "OpenSearch rejected the request credentials"
		e.Suggestion = "Check OPENSEARCH_AUTH_MODE and the IAM role or basic auth user."
	case http.StatusNotFound:
		e.Type = types.ErrorTypeValidation
		e.Message = "index or endpoint not found"
		e.Suggestion = "Check OPENSEARCH_ENDPOINT and OPENSEARCH_INDEX."
	case http.StatusBadRequest:
		e.Type = types.ErrorTypeBackendQuery
		e.Message = fmt.Sprintf("query rejected: %s", body)
		e.Suggestion = "Check OPENSEARCH_MODEL_ID, the vector field and the index search pipeline."
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		e.Type = types.ErrorTypeNetworkTimeout
		e.Message = "request timed out"
		e.Retryable = true
		e.RetryAfter = 5 * time.Second
	case http.StatusTooManyRequests:
		e.Type = types.ErrorTypeRateLimit
		e.Message = "rate limit reached"
		e.Retryable = true
		e.RetryAfter = 10 * time.Second
		if strings.Contains(body, "retry after") {
			e.RetryAfter = 30 * time.Second
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		e.Type = types.ErrorTypeBackendConnection
		e.Message = "OpenSearch server error"
		e.Retryable = true
		e.RetryAfter = 10 * time.Second
	default:
		e.Type = types.ErrorTypeUnknown
		e.Message = fmt.Sprintf("unexpected HTTP error: %s", body)
		e.Retryable = statusCode >= 500
		e.RetryAfter = 5 * time.Second
	}

	return e
}

func ClassifyConnectionError(err error) *SearchError {
	errMsg := err.Error()
	e := &SearchError{Err: err, Timestamp: time.Now()}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded"):
		e.Type = types.ErrorTypeNetworkTimeout
		e.Message = "connection to OpenSearch timed out"
		e.Retryable = true
		e.RetryAfter = 5 * time.Second
	case errors.Is(err, context.Canceled):
		e.Type = types.ErrorTypeBackendConnection
		e.Message = "request canceled"
	case strings.Contains(errMsg, "connection refused"):
		e.Type = types.ErrorTypeBackendConnection
		e.Message = "connection to OpenSearch refused"
		e.Suggestion = "Check the OPENSEARCH_ENDPOINT host and port."
	case strings.Contains(errMsg, "no such host"):
		e.Type = types.ErrorTypeBackendConnection
		e.Message = "OpenSearch host not found"
		e.Suggestion = "Check the OPENSEARCH_ENDPOINT host name."
	default:
		if status := statusFromMessage(errMsg); status > 0 {
			classified := ClassifyHTTPError(status, errMsg)
			classified.Err = err
			return classified
		}
		e.Type = types.ErrorTypeUnknown
		e.Message = fmt.Sprintf("connection error: %v", err)
		e.Retryable = true
		e.RetryAfter = 10 * time.Second
	}

	return e
}

// statusFromMessage extracts the HTTP status opensearch-go embeds in its
// error strings ("status: 403").
func statusFromMessage(msg string) int {
	idx := strings.Index(msg, "status: ")
	if idx < 0 {
		return 0
	}
	rest := msg[idx+len("status: "):]
	status := 0
	for i := 0; i < len(rest) && i < 3; i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return 0
		}
		status = status*10 + int(rest[i]-'0')
	}
	if status < 100 {
		return 0
	}
	return status
}
