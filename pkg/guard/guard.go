// Package guard protects server handlers with the session token. A request
// is authenticated by the session cookie or, failing that, an
// Authorization: Bearer header; either must carry a token that verifies and
// has not expired.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/authcore/pkg/authsdk"
	"github.com/aussiebroadwan/authcore/pkg/httpx"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/sessionx"
)

// Denial reasons passed to the hook set with WithDenialHook.
const (
	ReasonNoToken      = "no_token"
	ReasonInvalidToken = "invalid_token"
	ReasonNotOwner     = "not_owner"
	ReasonNotAdmin     = "not_admin"
	ReasonLookupFailed = "lookup_failed"
)

// Audit actions reported to the hook set with WithAuditHook.
const (
	ActionAdminAccessGranted = "ADMIN_ACCESS_GRANTED"
	ActionAdminAuthFailed    = "ADMIN_AUTH_FAILED"
	ActionRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
)

// AuditEvent is the outcome of an admin request. UserID is zero when the
// caller is anonymous.
type AuditEvent struct {
	Action    string
	UserID    int64
	Success   bool
	Reason    string
	Path      string
	IP        string
	UserAgent string
}

// NewAuditEvent fills in the request details of an event. The user id is
// taken from the context when a guard middleware has already run.
func NewAuditEvent(r *http.Request, action string) AuditEvent {
	ev := AuditEvent{
		Action:    action,
		Path:      r.URL.Path,
		IP:        httpx.IPKeyExtractor(r),
		UserAgent: r.UserAgent(),
	}
	if id, ok := httpx.UserIDFromContext(r.Context()); ok {
		ev.UserID = id
	}
	return ev
}

// RoleLookup answers whether a user holds the admin role.
type RoleLookup interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// Guard authenticates and authorizes incoming requests.
type Guard struct {
	codec   *jwtx.Codec
	roles   RoleLookup
	cookies sessionx.Cookies
	log     *slog.Logger
	denied  func(reason string)
	audited func(ctx context.Context, ev AuditEvent)
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// WithDenialHook registers fn to be called with a Reason* constant each time
// a request is refused.
func WithDenialHook(fn func(reason string)) Option {
	return func(g *Guard) {
		if fn != nil {
			g.denied = fn
		}
	}
}

// WithAuditHook registers fn to be called with the outcome of every
// RequireAdmin check, allowed or not.
func WithAuditHook(fn func(ctx context.Context, ev AuditEvent)) Option {
	return func(g *Guard) {
		if fn != nil {
			g.audited = fn
		}
	}
}

// New returns a Guard verifying tokens with codec. roles may be nil when
// RequireAdmin is never used.
func New(codec *jwtx.Codec, roles RoleLookup, opts ...Option) *Guard {
	g := &Guard{
		codec:   codec,
		roles:   roles,
		log:     slog.Default(),
		denied:  func(string) {},
		audited: func(context.Context, AuditEvent) {},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With("component", "guard")
	return g
}

// RequireAuth returns the user the request is authenticated as. The cookie
// is tried first and then the bearer header; the first token that verifies
// wins. Without one the error matches authsdk.ErrUnauthorized.
func (g *Guard) RequireAuth(r *http.Request) (jwtx.SessionUser, error) {
	user, reason, err := g.authenticate(r)
	if err != nil {
		g.denied(reason)
	}
	return user, err
}

func (g *Guard) authenticate(r *http.Request) (jwtx.SessionUser, string, error) {
	var candidates []string
	if tok, ok := g.cookies.Get(r); ok {
		candidates = append(candidates, tok)
	}
	if tok, ok := httpx.BearerToken(r); ok {
		candidates = append(candidates, tok)
	}

	if len(candidates) == 0 {
		return jwtx.SessionUser{}, ReasonNoToken, fmt.Errorf("%w: no session token", authsdk.ErrUnauthorized)
	}

	for _, tok := range candidates {
		if user, ok := g.codec.Verify(tok); ok {
			return user, "", nil
		}
	}

	return jwtx.SessionUser{}, ReasonInvalidToken, fmt.Errorf("%w: invalid or expired token", authsdk.ErrUnauthorized)
}

// RequireUserAccess is RequireAuth restricted to the owner of a resource.
func (g *Guard) RequireUserAccess(r *http.Request, ownerID int64) (jwtx.SessionUser, error) {
	user, err := g.RequireAuth(r)
	if err != nil {
		return jwtx.SessionUser{}, err
	}
	if user.ID != ownerID {
		g.denied(ReasonNotOwner)
		return jwtx.SessionUser{}, fmt.Errorf("%w: user %d may not access user %d", authsdk.ErrForbidden, user.ID, ownerID)
	}
	return user, nil
}

// RequireAdmin is RequireAuth restricted to admins. A failed role lookup is
// returned wrapped and matches neither ErrUnauthorized nor ErrForbidden.
// Every outcome is passed to the audit hook.
func (g *Guard) RequireAdmin(r *http.Request) (jwtx.SessionUser, error) {
	user, reason, err := g.requireAdmin(r)
	if err != nil {
		g.denied(reason)
	}
	g.audit(r, user.ID, reason)
	if err != nil {
		return jwtx.SessionUser{}, err
	}
	return user, nil
}

// requireAdmin returns the authenticated user even when the check fails so
// the audit trail can name them.
func (g *Guard) requireAdmin(r *http.Request) (jwtx.SessionUser, string, error) {
	user, reason, err := g.authenticate(r)
	if err != nil {
		return jwtx.SessionUser{}, reason, err
	}
	if g.roles == nil {
		return user, ReasonLookupFailed, errors.New("guard: no role lookup configured")
	}

	admin, err := g.roles.IsAdmin(r.Context(), user.ID)
	if err != nil {
		g.log.Error("role lookup failed", "user_id", user.ID, "err", err)
		return user, ReasonLookupFailed, fmt.Errorf("guard: role lookup for user %d: %w", user.ID, err)
	}
	if !admin {
		return user, ReasonNotAdmin, fmt.Errorf("%w: admin role required", authsdk.ErrForbidden)
	}
	return user, "", nil
}

func (g *Guard) audit(r *http.Request, userID int64, reason string) {
	ev := NewAuditEvent(r, ActionAdminAccessGranted)
	ev.UserID = userID
	ev.Success = reason == ""
	if !ev.Success {
		ev.Action = ActionAdminAuthFailed
		ev.Reason = reason
	}
	g.audited(r.Context(), ev)
}
