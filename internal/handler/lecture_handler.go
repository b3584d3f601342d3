package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
	"github.com/gurukul-lms/gurukul-api/pkg/response"
)

type lectureService interface {
	Get(ctx context.Context, userID, lectureID string) (*dto.LectureDetail, error)
	Toggle(ctx context.Context, userID, lectureID string, req dto.ToggleLectureRequest, ifMatch *int) (*dto.ToggleLectureResponse, error)
}

// LectureHandler serves lecture detail and completion toggles.
type LectureHandler struct {
	service lectureService
}

// NewLectureHandler constructs the handler.
func NewLectureHandler(svc lectureService) *LectureHandler {
	return &LectureHandler{service: svc}
}

// Get godoc
// @Summary Lecture detail with course context and neighbours
// @Tags Student
// @Produce json
// @Param lectureId path string true "Lecture ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /student/lectures/{lectureId} [get]
func (h *LectureHandler) Get(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), claims.UserID, c.Param("lectureId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	setETag(c, detail.Version)
	response.JSON(c, http.StatusOK, detail, nil)
}

// Toggle godoc
// @Summary Mark a lecture complete or incomplete
// @Description Send If-Match with the last seen enrollment version to fail with 412 instead of overwriting a newer state.
// @Tags Student
// @Accept json
// @Produce json
// @Param lectureId path string true "Lecture ID"
// @Param If-Match header string false "Expected enrollment version"
// @Param payload body dto.ToggleLectureRequest true "Completion flag"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /student/lectures/{lectureId} [patch]
func (h *LectureHandler) Toggle(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	ifMatch, err := parseIfMatch(c.GetHeader("If-Match"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ToggleLectureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	result, err := h.service.Toggle(c.Request.Context(), claims.UserID, c.Param("lectureId"), req, ifMatch)
	if err != nil {
		response.Error(c, err)
		return
	}
	setETag(c, result.Version)
	response.JSON(c, http.StatusOK, result, nil)
}

func setETag(c *gin.Context, version int) {
	c.Header("ETag", strconv.Quote(strconv.Itoa(version)))
}

// parseIfMatch accepts 3, "3" and W/"3". An absent header means no precondition.
func parseIfMatch(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "If-Match must be an enrollment version")
	}
	return &v, nil
}
