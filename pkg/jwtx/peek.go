package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Unverified is what PeekUnverified reads out of a token. Nothing in it has
// been authenticated.
type Unverified struct {
	User      SessionUser
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token's exp has passed at now.
func (u Unverified) Expired(now time.Time) bool {
	return !now.Before(u.ExpiresAt)
}

// PeekUnverified decodes a token's payload WITHOUT checking its signature.
// Clients use it to render the signed-in user before the server has been
// asked; servers must use Codec.Verify instead. Tokens with no user or no
// exp are rejected.
func PeekUnverified(token string) (Unverified, bool) {
	if token == "" {
		return Unverified{}, false
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Unverified{}, false
	}

	user, err := claims.SessionUser()
	if err != nil || claims.ExpiresAt == nil {
		return Unverified{}, false
	}

	out := Unverified{User: user, ExpiresAt: claims.ExpiresAt.Time}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, true
}
