package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authcore/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptySecret  = errors.New("jwtx: empty signing secret")
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Codec issues and verifies HS256 session tokens with a shared secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithTTL overrides DefaultTokenTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec returns a Codec signing with secret.
func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL reports the lifetime given to new tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Create signs a new token for user, expiring TTL from now.
func (c *Codec) Create(user SessionUser) (string, error) {
	if user.ID <= 0 {
		return "", fmt.Errorf("%w: user id must be positive", ErrInvalidClaim)
	}

	now := c.now().UTC()
	claims := newSessionClaims(user, idx.NewAt(now), now, c.ttl)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// Verify returns the token's user when the signature is valid and the token
// is unexpired. It never reports why a token was refused; use Parse for that.
func (c *Codec) Verify(token string) (SessionUser, bool) {
	claims, err := c.Parse(token)
	if err != nil {
		return SessionUser{}, false
	}
	u, _ := claims.SessionUser()
	return u, true
}

// VerifyForRefresh is Verify with expiry relaxed by grace: an expired token
// is still accepted while now < exp+grace. Only the refresh endpoint should
// use it.
func (c *Codec) VerifyForRefresh(token string, grace time.Duration) (SessionUser, bool) {
	if grace < 0 {
		grace = 0
	}
	claims, err := c.parse(token, grace)
	if err != nil {
		return SessionUser{}, false
	}
	u, _ := claims.SessionUser()
	return u, true
}

// Parse verifies token and returns its claims. Errors match one of
// ErrMalformed, ErrInvalidSig, ErrExpired or ErrInvalidClaim.
func (c *Codec) Parse(token string) (*Claims, error) {
	return c.parse(token, 0)
}

func (c *Codec) parse(tokenStr string, leeway time.Duration) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(c.now),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaim
	}
	if _, err := claims.SessionUser(); err != nil {
		return nil, err
	}
	return claims, nil
}

// mapParseError folds jwt library errors onto the package sentinels. Expiry
// is checked first because the library joins it with ErrTokenInvalidClaims.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSig, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
