package authsdk

import (
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
)

// ============================================================================
// Wire Types
// ============================================================================

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	// Error is a stable error code (e.g., "invalid_credentials")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// AuthResponse is returned by login and register. The token is also set
// as the session cookie.
type AuthResponse struct {
	User  jwtx.SessionUser `json:"user"`
	Token string           `json:"token"`
}

// RefreshRequest is the body of POST /auth/refresh; the current token
// travels in the Authorization header.
type RefreshRequest struct {
	UserID int64 `json:"userId"`
}

// RefreshResponse carries the newly issued token.
type RefreshResponse struct {
	Token string `json:"token"`
}

// VerifyResponse is returned by GET /auth/verify.
type VerifyResponse struct {
	User jwtx.SessionUser `json:"user"`
}

// UserProfile is the public view of an account.
type UserProfile struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IsAdmin     bool   `json:"isAdmin,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// HealthResponse is returned by the liveness and readiness probes.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports each dependency checked by the readiness probe.
type HealthChecks struct {
	Database string `json:"database"`
}
