package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/authcore/internal/auth/service"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/aussiebroadwan/authcore/pkg/authsdk"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
)

// writeServiceError maps a service error onto its HTTP response. Anything
// unrecognised is logged and reported as a 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *authsdk.RequestError
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		reqErr = authsdk.NewRequestError(http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "invalid email or password")
	case errors.Is(err, service.ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		reqErr = authsdk.NewRequestError(http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "token is invalid or too old to refresh")
	case errors.Is(err, service.ErrEmailTaken):
		reqErr = authsdk.NewRequestError(http.StatusConflict, authsdk.ErrorCodeEmailTaken, "email already registered")
	case errors.Is(err, service.ErrInvalidInput):
		reqErr = authsdk.NewRequestError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		reqErr = authsdk.NewRequestError(http.StatusNotFound, authsdk.ErrorCodeNotFound, "user not found")
	default:
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		reqErr = authsdk.NewRequestError(http.StatusInternalServerError, authsdk.ErrorCodeServerError, "internal error")
	}
	reqErr.WriteError(w)
}

func writeBadRequest(w http.ResponseWriter, description string) {
	authsdk.NewRequestError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, description).WriteError(w)
}
