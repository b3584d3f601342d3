package dto

import (
	"time"

	"github.com/gurukul-lms/gurukul-api/internal/models"
)

// ExportRequest captures POST /admin/exports.
type ExportRequest struct {
	Type     models.ExportType `json:"type" validate:"required"`
	CourseID *string           `json:"courseId,omitempty"`
	Format   string            `json:"format" validate:"omitempty,oneof=csv pdf"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID         string              `json:"id"`
	Type       models.ExportType   `json:"type"`
	Status     models.ExportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	ResultURL  *string             `json:"resultUrl,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}
