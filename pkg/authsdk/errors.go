package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/twofa/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeInvalidRequest  = "invalid_request"
	ErrorCodeUnknownUser     = "unknown_user"
	ErrorCodeAlreadyVerified = "already_verified"
	ErrorCodeNotFound        = "not_found"
	ErrorCodeRateLimited     = "rate_limit_exceeded"
	ErrorCodeServerError     = "server_error"
)

// ============================================================================
// APIError
// ============================================================================

// APIError is the error shape of every non-2xx response. It is used both by
// the server (to write HTTP responses) and by the SDK client (to represent
// errors).
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on status and code so callers can use errors.Is against the
// predefined values regardless of the description the server sent.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode && e.Code == t.Code
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Description)
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	// ErrInvalidRequest is returned when the body is malformed or a required
	// field is missing.
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrUnknownUser is returned for a user ID that was never registered.
	ErrUnknownUser = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeUnknownUser,
		Description: "unknown user",
	}

	// ErrAlreadyVerified is returned when enrollment is confirmed twice.
	ErrAlreadyVerified = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAlreadyVerified,
		Description: "user is already verified",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "not found",
	}

	ErrMethodNotAllowed = &APIError{
		StatusCode:  http.StatusMethodNotAllowed,
		Code:        ErrorCodeInvalidRequest,
		Description: "method not allowed",
	}

	// ErrRateLimited is returned when registration is throttled.
	ErrRateLimited = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeRateLimited,
		Description: "too many requests, please try again later",
	}

	// ErrServerError hides every internal fault from the caller.
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// NewAPIError creates a new APIError with the given status code, error code, and description.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into an *APIError.
// Returns nil if the response indicates success (2xx status code).
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	// Fallback: create generic error from status code
	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
