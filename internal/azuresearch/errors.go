package azuresearch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ca-srg/hybridgate/internal/types"
)

// APIError is a non-2xx response from the search service.
type APIError struct {
	Type       types.ErrorType `json:"type"`
	StatusCode int             `json:"status_code"`
	Code       string          `json:"code,omitempty"`
	Message    string          `json:"message"`
	Suggestion string          `json:"suggestion,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s: %s (HTTP %d)", e.Type, e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s (HTTP %d)", e.Type, e.Message, e.StatusCode)
}

// Timeout reports whether the service gave up waiting.
func (e *APIError) Timeout() bool {
	return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusGatewayTimeout
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classifyResponse converts an error response body into an APIError.
func classifyResponse(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(statusCode)
		}
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		apiErr.Type = types.ErrorTypeAuthentication
		apiErr.Suggestion = "Check AZURE_SEARCH_KEY and that the key has query permissions."
	case http.StatusNotFound:
		apiErr.Type = types.ErrorTypeValidation
		apiErr.Suggestion = "Check AZURE_SEARCH_ENDPOINT and AZURE_SEARCH_INDEX."
	case http.StatusBadRequest:
		apiErr.Type = types.ErrorTypeBackendQuery
		apiErr.Suggestion = "Check the vector field and semantic configuration names against the index schema."
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		apiErr.Type = types.ErrorTypeTimeout
	case http.StatusTooManyRequests:
		apiErr.Type = types.ErrorTypeRateLimit
		apiErr.Suggestion = "Lower AZURE_SEARCH_RATE_LIMIT or scale the search service."
	default:
		if statusCode >= 500 {
			apiErr.Type = types.ErrorTypeBackendConnection
		} else {
			apiErr.Type = types.ErrorTypeUnknown
		}
	}

	return apiErr
}
