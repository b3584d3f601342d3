package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
	"github.com/gurukul-lms/gurukul-api/pkg/response"
)

type accountLookup interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// AuthHandler describes the caller. Tokens come from the identity provider;
// there is no login endpoint here.
type AuthHandler struct {
	accounts accountLookup
}

// NewAuthHandler constructs the handler. With accounts set, /auth/me reflects
// the stored profile and refuses deactivated accounts; without it the token
// claims are echoed.
func NewAuthHandler(accounts accountLookup) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Me godoc
// @Summary Current caller
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	info := claims.Info()
	if h.accounts == nil {
		response.JSON(c, http.StatusOK, info, nil)
		return
	}

	user, err := h.accounts.Get(c.Request.Context(), claims.UserID)
	switch {
	case errors.Is(err, appErrors.ErrNotFound):
		// provisioned by the identity provider but never stored locally
	case err != nil:
		response.Error(c, err)
		return
	case !user.Active:
		response.Error(c, appErrors.ErrInactiveAccount)
		return
	default:
		info = models.UserInfo{ID: user.ID, Email: user.Email, FullName: user.FullName, Role: user.Role}
	}
	response.JSON(c, http.StatusOK, info, nil)
}
