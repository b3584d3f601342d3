package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/middleware"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/pkg/response"
)

type notificationService interface {
	Feed(ctx context.Context, user models.UserInfo, query dto.NotificationQuery) (*dto.NotificationFeed, error)
	MarkRead(ctx context.Context, userID string, req dto.MarkNotificationsRequest) (*dto.MarkNotificationsResponse, error)
	Delete(ctx context.Context, userID, id string) error
}

// NotificationHandler serves the student's notification feed.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary Notification feed
// @Description Announcements addressed to the caller are materialized on read. meta.unreadCount holds the unread total.
// @Tags Student
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Page size (max 100)"
// @Param unread query bool false "Only unread"
// @Param exclude query string false "Comma separated ids to leave out"
// @Success 200 {object} response.Envelope
// @Router /student/notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	query := dto.NotificationQuery{
		Page:    queryInt(c, 1, "page"),
		Limit:   queryInt(c, 0, "limit"),
		Exclude: c.QueryArray("exclude"),
	}
	if unread, err := strconv.ParseBool(strings.TrimSpace(c.Query("unread"))); err == nil {
		query.UnreadOnly = unread
	}

	feed, err := h.service.Feed(c.Request.Context(), claims.Info(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetUnreadCount(c, feed.UnreadCount)
	pagination := feed.Pagination
	response.JSON(c, http.StatusOK, feed.Items, &pagination, middleware.ExtractMeta(c))
}

// MarkRead godoc
// @Summary Mark one or all notifications read
// @Tags Student
// @Accept json
// @Produce json
// @Param payload body dto.MarkNotificationsRequest true "Either id or all=true"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /student/notifications [patch]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.MarkNotificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	result, err := h.service.MarkRead(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete a notification
// @Description The notification never reappears in the feed.
// @Tags Student
// @Param id path string true "Notification ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /student/notifications/{id} [delete]
func (h *NotificationHandler) Delete(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
