package jwtx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of a session token. It matches the cookie
// Max-Age so both lapse together.
const DefaultTokenTTL = 7 * 24 * time.Hour

// SessionUser is the identity carried inside a session token.
type SessionUser struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Claims is the token payload. Current tokens carry the user object; older
// tokens carry a flat userId and email. Use SessionUser to read either shape.
type Claims struct {
	jwt.RegisteredClaims

	// User is set on every token this package issues.
	User *SessionUser `json:"user,omitempty"`

	/* Legacy shape */

	// UserID may be encoded as a JSON number or a numeric string.
	UserID LegacyUserID `json:"userId,omitempty"`
	Email  string       `json:"email,omitempty"`
}

// SessionUser normalises both claim shapes into a single identity.
func (c *Claims) SessionUser() (SessionUser, error) {
	if c.User != nil {
		if c.User.ID <= 0 {
			return SessionUser{}, fmt.Errorf("%w: user.id must be positive", ErrInvalidClaim)
		}
		return *c.User, nil
	}
	if c.UserID > 0 {
		return SessionUser{ID: int64(c.UserID), Email: c.Email}, nil
	}
	return SessionUser{}, fmt.Errorf("%w: no user identity", ErrInvalidClaim)
}

// LegacyUserID decodes the "userId" claim of old tokens.
type LegacyUserID int64

func (id *LegacyUserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}

	raw := string(b)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("jwtx: userId %q is not an integer", raw)
	}
	*id = LegacyUserID(n)
	return nil
}

// newSessionClaims builds the claims for a freshly issued token.
func newSessionClaims(user SessionUser, jti string, now time.Time, ttl time.Duration) *Claims {
	u := user
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		User: &u,
	}
}
