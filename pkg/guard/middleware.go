package guard

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/authcore/pkg/authsdk"
	"github.com/aussiebroadwan/authcore/pkg/httpx"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
)

type ctxKey struct{}

// WithUser stores user in ctx along with its id for httpx.
func WithUser(ctx context.Context, user jwtx.SessionUser) context.Context {
	ctx = context.WithValue(ctx, ctxKey{}, user)
	return httpx.WithUserID(ctx, user.ID)
}

// UserFromContext returns the user set by one of the guard middlewares.
func UserFromContext(ctx context.Context) (jwtx.SessionUser, bool) {
	u, ok := ctx.Value(ctxKey{}).(jwtx.SessionUser)
	return u, ok
}

// Authenticated rejects requests without a valid session.
func (g *Guard) Authenticated(next http.Handler) http.Handler {
	return g.middleware(g.RequireAuth, next)
}

// Admin rejects requests from anyone but an admin.
func (g *Guard) Admin(next http.Handler) http.Handler {
	return g.middleware(g.RequireAdmin, next)
}

// OwnerFromPath rejects requests unless the caller's id equals the numeric
// path wildcard param.
func (g *Guard) OwnerFromPath(param string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID, err := strconv.ParseInt(r.PathValue(param), 10, 64)
			if err != nil || ownerID <= 0 {
				authsdk.NewRequestError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "invalid "+param).WriteError(w)
				return
			}
			check := func(r *http.Request) (jwtx.SessionUser, error) {
				return g.RequireUserAccess(r, ownerID)
			}
			g.middleware(check, next).ServeHTTP(w, r)
		})
	}
}

func (g *Guard) middleware(check func(*http.Request) (jwtx.SessionUser, error), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := check(r)
		if err != nil {
			if isDenial(err) {
				slogx.FromContext(r.Context()).Debug("request denied", "path", r.URL.Path, "err", err)
			}
			WriteError(w, err)
			return
		}

		ctx := WithUser(r.Context(), user)
		ctx = slogx.WithUserID(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isDenial(err error) bool {
	return errors.Is(err, authsdk.ErrUnauthorized) || errors.Is(err, authsdk.ErrForbidden)
}

// WriteError writes the response for a guard error: 401 with a bearer
// challenge, 403, or 500 for anything else.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authsdk.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		authsdk.NewRequestError(http.StatusUnauthorized, authsdk.ErrorCodeUnauthorized, "authentication required").WriteError(w)
	case errors.Is(err, authsdk.ErrForbidden):
		authsdk.NewRequestError(http.StatusForbidden, authsdk.ErrorCodeForbidden, "access denied").WriteError(w)
	default:
		authsdk.NewRequestError(http.StatusInternalServerError, authsdk.ErrorCodeServerError, "internal error").WriteError(w)
	}
}
