package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gurukul-lms/gurukul-api/internal/middleware"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
	"github.com/gurukul-lms/gurukul-api/pkg/response"
)

// currentUser returns the caller's claims or writes a 401.
func currentUser(c *gin.Context) (*models.JWTClaims, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

// queryInt reads the first non-empty key as an int, falling back to def.
func queryInt(c *gin.Context, def int, keys ...string) int {
	for _, key := range keys {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}

func bindError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}
