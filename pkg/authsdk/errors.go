package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aussiebroadwan/authcore/pkg/httpx"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
)

// ============================================================================
// Error taxonomy
// ============================================================================

var (
	// ErrInvalidCredentials is a rejected email/password pair.
	ErrInvalidCredentials = errors.New("authsdk: invalid credentials")

	// ErrTokenExpired is a token whose exp has passed.
	ErrTokenExpired = errors.New("authsdk: token expired")

	// ErrTokenMalformed is a token that could not be decoded or whose
	// signature did not verify.
	ErrTokenMalformed = errors.New("authsdk: token malformed")

	// ErrRefreshFailed wraps every failed refresh; the cause is joined in.
	ErrRefreshFailed = errors.New("authsdk: token refresh failed")

	// ErrUnauthorized means the caller must sign in again.
	ErrUnauthorized = errors.New("authsdk: unauthorized")

	// ErrForbidden means the caller is signed in but not allowed.
	ErrForbidden = errors.New("authsdk: forbidden")

	// ErrNetwork is a transport failure before any response arrived.
	ErrNetwork = errors.New("authsdk: network error")

	// ErrAuthFallbackMode is returned instead of ErrUnauthorized when a
	// request opted into fallback mode and a cached user is available.
	ErrAuthFallbackMode = errors.New("authsdk: auth fallback mode")

	// ErrDisposed is returned by a Manager after Dispose.
	ErrDisposed = errors.New("authsdk: manager disposed")
)

// ============================================================================
// Wire error codes
// ============================================================================

const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeUnauthorized       = "unauthorized"
	ErrorCodeForbidden          = "forbidden"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeEmailTaken         = "email_taken"
	ErrorCodeServerError        = "server_error"
)

// ============================================================================
// RequestError - non-success HTTP responses
// ============================================================================

// RequestError is a non-2xx response. The server writes it with WriteError
// and the SDK decodes it back from the body, so both sides share one shape.
type RequestError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is a stable machine-readable error code
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// NewRequestError creates a RequestError.
func NewRequestError(statusCode int, code, description string) *RequestError {
	return &RequestError{StatusCode: statusCode, Code: code, Description: description}
}

func (e *RequestError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authsdk: HTTP %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("authsdk: HTTP %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// Is lets errors.Is match authentication statuses against the taxonomy.
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrInvalidCredentials:
		return e.Code == ErrorCodeInvalidCredentials
	}
	return false
}

// Temporary reports whether retrying the same request may succeed.
func (e *RequestError) Temporary() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	}
	return false
}

// WriteError writes this error as a JSON response.
func (e *RequestError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
	})
}

// ============================================================================
// FallbackError
// ============================================================================

// FallbackError reports that authentication could not be restored but the
// caller asked for fallback mode. User is the last known identity, which the
// caller may keep displaying while it prompts for a new sign-in.
type FallbackError struct {
	User  jwtx.SessionUser
	Cause error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("authsdk: auth fallback mode for user %d: %v", e.User.ID, e.Cause)
}

func (e *FallbackError) Is(target error) bool { return target == ErrAuthFallbackMode }

func (e *FallbackError) Unwrap() error { return e.Cause }

// ============================================================================
// Classification
// ============================================================================

// Kind is the category an error falls into.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidCredentials
	KindTokenExpired
	KindTokenMalformed
	KindRefreshFailed
	KindUnauthorized
	KindForbidden
	KindNetwork
	KindFallback
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindTokenExpired:
		return "token_expired"
	case KindTokenMalformed:
		return "token_malformed"
	case KindRefreshFailed:
		return "refresh_failed"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNetwork:
		return "network"
	case KindFallback:
		return "fallback"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Classify maps err onto the taxonomy. The most specific match wins:
// fallback beats unauthorized, which beats the refresh failure that caused it.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var reqErr *RequestError
	switch {
	case errors.Is(err, ErrAuthFallbackMode):
		return KindFallback
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrRefreshFailed):
		return KindRefreshFailed
	case errors.Is(err, ErrTokenExpired), errors.Is(err, jwtx.ErrExpired):
		return KindTokenExpired
	case errors.Is(err, ErrTokenMalformed), errors.Is(err, jwtx.ErrMalformed), errors.Is(err, jwtx.ErrInvalidSig):
		return KindTokenMalformed
	case isNetwork(err):
		return KindNetwork
	case errors.As(err, &reqErr) && reqErr.StatusCode >= 500:
		return KindServer
	}
	return KindUnknown
}

// Message returns a sentence suitable for showing to an end user.
func Message(err error) string {
	switch Classify(err) {
	case KindInvalidCredentials:
		return "Invalid email or password."
	case KindTokenExpired, KindUnauthorized, KindRefreshFailed:
		return "Your session has expired. Please sign in again."
	case KindTokenMalformed:
		return "Your session is invalid. Please sign in again."
	case KindForbidden:
		return "You do not have permission to do that."
	case KindNetwork:
		return "Unable to reach the server. Check your connection and try again."
	case KindFallback:
		return "We could not confirm your session. Some features may be unavailable until you sign in again."
	case KindServer:
		return "The server had a problem. Please try again shortly."
	}
	if err == nil {
		return ""
	}
	return "Something went wrong. Please try again."
}

// isTransient reports whether err is worth retrying: transport failures and
// temporary HTTP statuses. Context cancellation never is.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if isNetwork(err) {
		return true
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Temporary()
	}
	return false
}

func isNetwork(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into a *RequestError,
// falling back to the status text when the body is not an error document.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &RequestError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	code := ErrorCodeServerError
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		code = ErrorCodeUnauthorized
	case http.StatusForbidden:
		code = ErrorCodeForbidden
	case http.StatusNotFound:
		code = ErrorCodeNotFound
	default:
		if resp.StatusCode < 500 {
			code = ErrorCodeInvalidRequest
		}
	}
	return &RequestError{
		StatusCode:  resp.StatusCode,
		Code:        code,
		Description: http.StatusText(resp.StatusCode),
	}
}
