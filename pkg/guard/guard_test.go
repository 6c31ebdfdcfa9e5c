package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/authcore/pkg/authsdk"
	"github.com/aussiebroadwan/authcore/pkg/httpx"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/sessionx"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
	"github.com/stretchr/testify/require"
)

var (
	alice = jwtx.SessionUser{ID: 42, Email: "a@b.com", DisplayName: "Alice"}
	bob   = jwtx.SessionUser{ID: 7, Email: "bob@example.com", DisplayName: "Bob"}
)

type roleMap struct {
	admins map[int64]bool
	err    error
}

func (m roleMap) IsAdmin(_ context.Context, id int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.admins[id], nil
}

type denials struct {
	mu      sync.Mutex
	reasons []string
}

func (d *denials) record(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
}

func (d *denials) all() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.reasons...)
}

func newCodec(t *testing.T, now time.Time) *jwtx.Codec {
	t.Helper()
	c, err := jwtx.NewCodec([]byte("guard-secret"), jwtx.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return c
}

func sign(t *testing.T, c *jwtx.Codec, u jwtx.SessionUser) string {
	t.Helper()
	tok, err := c.Create(u)
	require.NoError(t, err)
	return tok
}

func newGuard(t *testing.T, roles RoleLookup) (*Guard, *jwtx.Codec, *denials) {
	t.Helper()
	codec := newCodec(t, time.Now())
	d := &denials{}
	return New(codec, roles, WithLogger(slogx.Discard()), WithDenialHook(d.record)), codec, d
}

func request(cookie, bearer string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != "" {
		r.AddCookie(&http.Cookie{Name: sessionx.CookieName, Value: cookie})
	}
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	return r
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	g, codec, _ := newGuard(t, nil)
	good := sign(t, codec, alice)
	other := sign(t, codec, bob)
	expired := sign(t, newCodec(t, time.Now().Add(-8*24*time.Hour)), alice)

	tests := []struct {
		name    string
		cookie  string
		bearer  string
		want    jwtx.SessionUser
		wantErr bool
	}{
		{name: "cookie", cookie: good, want: alice},
		{name: "bearer", bearer: good, want: alice},
		{name: "cookie wins over bearer", cookie: good, bearer: other, want: alice},
		{name: "bad cookie falls back to bearer", cookie: "garbage", bearer: other, want: bob},
		{name: "expired cookie falls back to bearer", cookie: expired, bearer: good, want: alice},
		{name: "nothing", wantErr: true},
		{name: "expired only", bearer: expired, wantErr: true},
		{name: "malformed only", cookie: "a.b.c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.RequireAuth(request(tt.cookie, tt.bearer))
			if tt.wantErr {
				require.ErrorIs(t, err, authsdk.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRequireAuthWrongSecret(t *testing.T) {
	t.Parallel()

	g, _, d := newGuard(t, nil)
	foreign, err := jwtx.NewCodec([]byte("someone-else"))
	require.NoError(t, err)

	_, err = g.RequireAuth(request("", sign(t, foreign, alice)))
	require.ErrorIs(t, err, authsdk.ErrUnauthorized)
	require.Equal(t, []string{ReasonInvalidToken}, d.all())
}

func TestRequireUserAccess(t *testing.T) {
	t.Parallel()

	g, codec, d := newGuard(t, nil)
	tok := sign(t, codec, alice)

	got, err := g.RequireUserAccess(request(tok, ""), 42)
	require.NoError(t, err)
	require.Equal(t, alice, got)

	_, err = g.RequireUserAccess(request(tok, ""), 7)
	require.ErrorIs(t, err, authsdk.ErrForbidden)
	require.NotErrorIs(t, err, authsdk.ErrUnauthorized)

	_, err = g.RequireUserAccess(request("", ""), 42)
	require.ErrorIs(t, err, authsdk.ErrUnauthorized)

	require.Equal(t, []string{ReasonNotOwner, ReasonNoToken}, d.all())
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	t.Run("admin", func(t *testing.T) {
		g, codec, _ := newGuard(t, roleMap{admins: map[int64]bool{42: true}})
		got, err := g.RequireAdmin(request("", sign(t, codec, alice)))
		require.NoError(t, err)
		require.Equal(t, alice, got)
	})

	t.Run("not admin", func(t *testing.T) {
		g, codec, d := newGuard(t, roleMap{admins: map[int64]bool{42: true}})
		_, err := g.RequireAdmin(request("", sign(t, codec, bob)))
		require.ErrorIs(t, err, authsdk.ErrForbidden)
		require.Equal(t, []string{ReasonNotAdmin}, d.all())
	})

	t.Run("lookup failure", func(t *testing.T) {
		boom := errors.New("db down")
		g, codec, _ := newGuard(t, roleMap{err: boom})
		_, err := g.RequireAdmin(request("", sign(t, codec, alice)))
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, authsdk.ErrForbidden)
		require.NotErrorIs(t, err, authsdk.ErrUnauthorized)
	})

	t.Run("unauthenticated skips lookup", func(t *testing.T) {
		g, _, _ := newGuard(t, roleMap{err: errors.New("must not be called")})
		_, err := g.RequireAdmin(request("", ""))
		require.ErrorIs(t, err, authsdk.ErrUnauthorized)
	})
}

type auditLog struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (a *auditLog) record(_ context.Context, ev AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *auditLog) all() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEvent(nil), a.events...)
}

func TestRequireAdminAudit(t *testing.T) {
	t.Parallel()

	codec := newCodec(t, time.Now())
	log := &auditLog{}
	g := New(codec, roleMap{admins: map[int64]bool{42: true}},
		WithLogger(slogx.Discard()),
		WithAuditHook(log.record),
	)

	send := func(token string) {
		r := httptest.NewRequest(http.MethodGet, "/admin/users/7", nil)
		r.RemoteAddr = "198.51.100.4:5555"
		r.Header.Set("User-Agent", "audit-test/1.0")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		_, _ = g.RequireAdmin(r)
	}

	send("")
	send("garbage")
	send(sign(t, codec, bob))
	send(sign(t, codec, alice))

	got := log.all()
	require.Len(t, got, 4)

	tests := []struct {
		action  string
		userID  int64
		success bool
		reason  string
	}{
		{ActionAdminAuthFailed, 0, false, ReasonNoToken},
		{ActionAdminAuthFailed, 0, false, ReasonInvalidToken},
		{ActionAdminAuthFailed, bob.ID, false, ReasonNotAdmin},
		{ActionAdminAccessGranted, alice.ID, true, ""},
	}
	for i, tt := range tests {
		ev := got[i]
		require.Equal(t, tt.action, ev.Action, "event %d", i)
		require.Equal(t, tt.userID, ev.UserID, "event %d", i)
		require.Equal(t, tt.success, ev.Success, "event %d", i)
		require.Equal(t, tt.reason, ev.Reason, "event %d", i)
		require.Equal(t, "/admin/users/7", ev.Path)
		require.Equal(t, "198.51.100.4", ev.IP)
		require.Equal(t, "audit-test/1.0", ev.UserAgent)
	}

	t.Run("lookup failure is recorded", func(t *testing.T) {
		log := &auditLog{}
		g := New(codec, roleMap{err: errors.New("db down")}, WithLogger(slogx.Discard()), WithAuditHook(log.record))
		_, err := g.RequireAdmin(request("", sign(t, codec, alice)))
		require.Error(t, err)
		require.Equal(t, []AuditEvent{{
			Action:    ActionAdminAuthFailed,
			UserID:    alice.ID,
			Reason:    ReasonLookupFailed,
			Path:      "/",
			IP:        "192.0.2.1",
			UserAgent: "",
		}}, log.all())
	})

	t.Run("other checks are not audited", func(t *testing.T) {
		log := &auditLog{}
		g := New(codec, nil, WithLogger(slogx.Discard()), WithAuditHook(log.record))
		_, _ = g.RequireAuth(request("", ""))
		_, _ = g.RequireUserAccess(request("", sign(t, codec, bob)), 42)
		require.Empty(t, log.all())
	})
}

func TestNewAuditEvent(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/admin/users/1", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	r.Header.Set("User-Agent", "curl/8.0")
	r = r.WithContext(httpx.WithUserID(r.Context(), 9))

	require.Equal(t, AuditEvent{
		Action:    ActionRateLimitExceeded,
		UserID:    9,
		Path:      "/admin/users/1",
		IP:        "203.0.113.7",
		UserAgent: "curl/8.0",
	}, NewAuditEvent(r, ActionRateLimitExceeded))
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	g, codec, _ := newGuard(t, roleMap{admins: map[int64]bool{42: true}})
	aliceTok := sign(t, codec, alice)
	bobTok := sign(t, codec, bob)

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		id, _ := httpx.UserIDFromContext(r.Context())
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": u.ID, "ctxId": id})
	})

	mux := http.NewServeMux()
	mux.Handle("GET /me", g.Authenticated(echo))
	mux.Handle("GET /admin", g.Admin(echo))
	mux.Handle("GET /users/{id}", g.OwnerFromPath("id")(echo))

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
		wantBody   string
	}{
		{"authenticated", "/me", aliceTok, http.StatusOK, `{"id":42,"ctxId":42}`},
		{"unauthenticated", "/me", "", http.StatusUnauthorized, `{"error":"unauthorized","error_description":"authentication required"}`},
		{"admin", "/admin", aliceTok, http.StatusOK, `{"id":42,"ctxId":42}`},
		{"not admin", "/admin", bobTok, http.StatusForbidden, `{"error":"forbidden","error_description":"access denied"}`},
		{"owner", "/users/7", bobTok, http.StatusOK, `{"id":7,"ctxId":7}`},
		{"not owner", "/users/42", bobTok, http.StatusForbidden, ""},
		{"bad id", "/users/abc", bobTok, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, r)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				require.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func TestWriteErrorInternal(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"server_error","error_description":"internal error"}`, rec.Body.String())
}
