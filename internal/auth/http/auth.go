package http

import (
	"net/http"

	"github.com/aussiebroadwan/authcore/internal/auth/service"
	"github.com/aussiebroadwan/authcore/pkg/authsdk"
	"github.com/aussiebroadwan/authcore/pkg/guard"
	"github.com/aussiebroadwan/authcore/pkg/httpx"
	"github.com/aussiebroadwan/authcore/pkg/sessionx"
)

// AuthHandler serves the session endpoints under /auth.
type AuthHandler struct {
	AuthService *service.AuthService
	Cookies     sessionx.Cookies
}

// HandleLogin godoc
//
//	@Summary		Sign in
//	@Description	Exchanges an email and password for a session token. The token is returned in the body and set as the session cookie.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.AuthResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_credentials"
//	@Failure		429		{object}	authsdk.ErrorResponse	"rate_limit_exceeded"
//	@Router			/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	user, token, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.Set(w, token)
	httpx.WriteJSON(w, http.StatusOK, authsdk.AuthResponse{User: user, Token: token})
}

// HandleRegister godoc
//
//	@Summary		Create an account
//	@Description	Registers a new user and signs them in.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"New account"
//	@Success		201		{object}	authsdk.AuthResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_request"
//	@Failure		409		{object}	authsdk.ErrorResponse	"email_taken"
//	@Failure		429		{object}	authsdk.ErrorResponse	"rate_limit_exceeded"
//	@Router			/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	user, token, err := h.AuthService.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.Set(w, token)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.AuthResponse{User: user, Token: token})
}

// HandleRefresh godoc
//
//	@Summary		Refresh a session token
//	@Description	Exchanges the current token for a new one. The token may be up to the refresh grace period past expiry.
//	@Description	It is read from the Authorization header, or the session cookie when the header is absent.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.RefreshRequest	false	"Expected user id"
//	@Success		200		{object}	authsdk.RefreshResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_token"
//	@Router			/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := httpx.BearerToken(r)
	if !ok {
		token, ok = h.Cookies.Get(r)
	}
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		authsdk.NewRequestError(http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "missing token").WriteError(w)
		return
	}

	var req authsdk.RefreshRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, "malformed request body")
			return
		}
	}

	fresh, err := h.AuthService.Refresh(r.Context(), token, req.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.Set(w, fresh)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RefreshResponse{Token: fresh})
}

// HandleLogout godoc
//
//	@Summary		Sign out
//	@Description	Expires the session cookie. Tokens are stateless, so clients must also discard their copy.
//	@Tags			Auth
//	@Success		204
//	@Router			/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Cookies.Delete(w)
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerify godoc
//
//	@Summary		Current session
//	@Description	Returns the user the request is authenticated as.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.VerifyResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"unauthorized"
//	@Router			/auth/verify [get].
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	user, ok := guard.UserFromContext(r.Context())
	if !ok {
		guard.WriteError(w, authsdk.ErrUnauthorized)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.VerifyResponse{User: user})
}
