package custodysdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tagcustody/tagcustody/pkg/httpx"
)

// Error codes shared between the service handlers and SDK callers.
const (
	ErrorCodeInvalidRequest    = "invalid_request"
	ErrorCodeNotFound          = "not_found"
	ErrorCodePermissionDenied  = "permission_denied"
	ErrorCodeConflict          = "conflict"
	ErrorCodeExpired           = "expired"
	ErrorCodeProtocolViolation = "protocol_violation"
	ErrorCodeWeakKey           = "weak_key"
	ErrorCodeServerError       = "server_error"
)

// APIError is the service's error envelope. It implements the error
// interface and is used both by handlers to write HTTP responses and by the
// SDK to surface server-side failures.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine-readable error code
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

// WithDescription returns a copy with a more specific description.
func (e *APIError) WithDescription(desc string) *APIError {
	clone := *e
	clone.Description = desc
	return &clone
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "the requested resource does not exist",
	}

	ErrPermissionDenied = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodePermissionDenied,
		Description: "the caller is not permitted to perform this operation",
	}

	ErrConflict = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeConflict,
		Description: "the operation conflicts with current state; re-read and retry",
	}

	ErrExpired = &APIError{
		StatusCode:  http.StatusGone,
		Code:        ErrorCodeExpired,
		Description: "the session or transfer deadline has elapsed; restart the flow",
	}

	ErrProtocolViolation = &APIError{
		StatusCode:  http.StatusUnprocessableEntity,
		Code:        ErrorCodeProtocolViolation,
		Description: "the card response violated the authentication protocol; the session was destroyed",
	}

	ErrWeakKey = &APIError{
		StatusCode:  http.StatusUnprocessableEntity,
		Code:        ErrorCodeWeakKey,
		Description: "the key is a degenerate cipher block; re-authenticate with a fresh session",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "an unexpected internal error occurred",
	}
)

// parseErrorResponse turns a non-success HTTP response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
}
