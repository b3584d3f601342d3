package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gurukul-lms/gurukul-api/internal/middleware"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
	"github.com/gurukul-lms/gurukul-api/pkg/response"
)

type statsService interface {
	Get(ctx context.Context, timeframe string) (*models.AdminStats, bool, error)
}

// StatsHandler serves the admin dashboard statistics.
type StatsHandler struct {
	service statsService
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(svc statsService) *StatsHandler {
	return &StatsHandler{service: svc}
}

// Get godoc
// @Summary Admin dashboard statistics
// @Tags Admin Stats
// @Produce json
// @Param timeframe query string false "30d (default), 3m, 6m or 1y"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/stats [get]
func (h *StatsHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	stats, cacheHit, err := h.service.Get(c.Request.Context(), c.Query("timeframe"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}
