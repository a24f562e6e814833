package authsdk

import "time"

// ============================================================================
// Internal Response Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse is the body of every non-2xx response.
// Client code should use the APIError type from errors.go instead.
type ErrorResponse struct {
	// Error is the machine readable error code (e.g., "invalid_request")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Registration Types
// ============================================================================

// RegistrationRequest is the optional body of POST /api/registration.
type RegistrationRequest struct {
	// Label is shown as the account name in authenticator apps.
	// The user ID is used when empty.
	Label string `json:"label,omitempty"`
}

// RegistrationResponse is returned once, at registration. The shared secret
// is never retrievable again.
type RegistrationResponse struct {
	// UserID is the opaque identity handle used by every later call
	UserID string `json:"user_id"`

	// UserKey is the shared secret in base32 (no padding)
	UserKey string `json:"user_key"`

	// OTPAuthURL is the otpauth:// provisioning URL
	OTPAuthURL string `json:"otpauth_url"`

	// QRCode is a data:image/png;base64 URI encoding OTPAuthURL
	QRCode string `json:"qr_code"`

	Response string `json:"response"`
}

// ============================================================================
// Key Types
// ============================================================================

// KeyRequest carries a one-time code for verification or validation.
type KeyRequest struct {
	UserID    string `json:"user_id"`
	UserToken string `json:"user_token"`
}

// VerificationResponse is returned from POST /api/key/verification.
type VerificationResponse struct {
	// Verified reports whether the code matched and enrollment completed
	Verified bool   `json:"verified"`
	Response string `json:"response"`
}

// ValidationResponse is returned from POST /api/key/validation.
type ValidationResponse struct {
	Validated bool   `json:"validated"`
	Response  string `json:"response"`
}

// ============================================================================
// User Types
// ============================================================================

// UserStatusResponse is returned from GET /api/users/{id}. It never carries
// secret material.
type UserStatusResponse struct {
	UserID     string     `json:"user_id"`
	Verified   bool       `json:"verified"`
	CreatedAt  time.Time  `json:"created_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// ============================================================================
// Health Types
// ============================================================================

// WelcomeResponse is returned from GET /.
type WelcomeResponse struct {
	Response string `json:"response"`
}

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Store indicates the record store connection status
	Store string `json:"store"`
}
