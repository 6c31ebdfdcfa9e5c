package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/authcore/pkg/jwtx"
)

// SDKClient talks to the auth service's public endpoints. It holds no
// session state; pair it with a Manager for that.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login exchanges an email and password for a session token. A rejected
// pair yields an error matching ErrInvalidCredentials.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	var out AuthResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and signs it in.
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/register", "", req)
	if err != nil {
		return nil, err
	}

	var out AuthResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken trades the current token for a new one. It satisfies
// Refresher so an SDKClient can back a Manager directly.
func (c *SDKClient) RefreshToken(ctx context.Context, token string, userID int64) (string, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", token, RefreshRequest{UserID: userID})
	if err != nil {
		return "", err
	}

	var out RefreshResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &RequestError{
			StatusCode:  http.StatusBadGateway,
			Code:        ErrorCodeServerError,
			Description: "refresh response carried no token",
		}
	}
	return out.Token, nil
}

// Verify asks the server who token belongs to.
func (c *SDKClient) Verify(ctx context.Context, token string) (*jwtx.SessionUser, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/auth/verify", token, nil)
	if err != nil {
		return nil, err
	}

	var out VerifyResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout asks the server to expire the session cookie. Tokens are
// stateless, so the caller must also drop its own copy.
func (c *SDKClient) Logout(ctx context.Context) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/logout", "", nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusNoContent)
}
