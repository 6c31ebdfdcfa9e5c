package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/internal/auth/service"
	"github.com/aussiebroadwan/authcore/pkg/authsdk"
	"github.com/aussiebroadwan/authcore/pkg/httpx"
)

type UserHandler struct {
	UserService *service.UserService
}

// HandleGetUser godoc
//
//	@Summary		User profile
//	@Description	Returns a user's own profile. Callers may only read their own id.
//	@Tags			Users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"User id"
//	@Success		200	{object}	authsdk.UserProfile
//	@Failure		401	{object}	authsdk.ErrorResponse	"unauthorized"
//	@Failure		403	{object}	authsdk.ErrorResponse	"forbidden"
//	@Failure		404	{object}	authsdk.ErrorResponse	"not_found"
//	@Router			/users/{id} [get].
func (h *UserHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	h.writeProfile(w, r, false)
}

// HandleAdminGetUser godoc
//
//	@Summary		User profile (admin)
//	@Description	Returns any user's profile including the admin flag. Requires the admin role.
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"User id"
//	@Success		200	{object}	authsdk.UserProfile
//	@Failure		401	{object}	authsdk.ErrorResponse	"unauthorized"
//	@Failure		403	{object}	authsdk.ErrorResponse	"forbidden"
//	@Failure		404	{object}	authsdk.ErrorResponse	"not_found"
//	@Router			/admin/users/{id} [get].
func (h *UserHandler) HandleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	h.writeProfile(w, r, true)
}

func (h *UserHandler) writeProfile(w http.ResponseWriter, r *http.Request, withRole bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "invalid user id")
		return
	}

	u, err := h.UserService.GetUserByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profile(u, withRole))
}

func profile(u domain.User, withRole bool) authsdk.UserProfile {
	p := authsdk.UserProfile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if withRole {
		p.IsAdmin = u.IsAdmin
	}
	return p
}
