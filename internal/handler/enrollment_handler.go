package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/pkg/response"
)

type enrollmentService interface {
	ListEnrolled(ctx context.Context, userID string) ([]dto.EnrolledCourse, error)
	Enroll(ctx context.Context, userID string, req dto.EnrollRequest) (*dto.EnrolledCourse, error)
	UpdateStatus(ctx context.Context, userID, courseID string, req dto.EnrollmentStatusRequest) (*dto.EnrolledCourse, error)
}

// EnrollmentHandler exposes the student's enrolled courses.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// List godoc
// @Summary List enrolled courses with progress
// @Tags Student
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /student/courses/enrolled [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.service.ListEnrolled(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Enroll godoc
// @Summary Enroll in a course
// @Tags Student
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Course to enroll in"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope "ALREADY_ENROLLED carries error.details.enrollmentId"
// @Failure 404 {object} response.Envelope
// @Router /student/courses/enrolled [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.service.Enroll(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateStatus godoc
// @Summary Pause or resume an enrollment
// @Tags Student
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body dto.EnrollmentStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /student/courses/enrolled/{courseId} [patch]
func (h *EnrollmentHandler) UpdateStatus(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.EnrollmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.service.UpdateStatus(c.Request.Context(), claims.UserID, c.Param("courseId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
