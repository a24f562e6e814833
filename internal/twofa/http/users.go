package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/twofa/internal/twofa/service"
	"github.com/aussiebroadwan/twofa/pkg/authsdk"
	"github.com/aussiebroadwan/twofa/pkg/httpx"
	"github.com/aussiebroadwan/twofa/pkg/slogx"
)

// UsersHandler serves read-only user state.
type UsersHandler struct {
	EnrollmentService *service.EnrollmentService
}

// ServeHTTP handles GET /api/users/{id}
//
//	@Summary		Get user status
//	@Description	Returns whether the user has completed enrollment. Never returns secret material.
//	@Tags			Users
//	@Produce		json
//	@Param			id	path		string						true	"User ID"
//	@Success		200	{object}	authsdk.UserStatusResponse	"User status"
//	@Failure		404	{object}	authsdk.ErrorResponse		"Unknown user"
//	@Failure		500	{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/api/users/{id} [get].
func (h *UsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	rec, err := h.EnrollmentService.Status(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrUnknownIdentity) {
			authsdk.ErrUnknownUser.WriteError(w)
			return
		}
		slogx.FromContext(ctx).Error("failed to load user", "user_id", id, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.UserStatusResponse{
		UserID:     rec.ID,
		Verified:   rec.Verified,
		CreatedAt:  rec.CreatedAt,
		VerifiedAt: rec.VerifiedAt,
	})
}
