package dto

import "github.com/gurukul-lms/gurukul-api/internal/models"

// CreateAnnouncementRequest captures POST /admin/announcements.
type CreateAnnouncementRequest struct {
	Subject       string               `json:"subject" validate:"required,max=200"`
	Message       string               `json:"message" validate:"required,max=10000"`
	RecipientType models.RecipientType `json:"recipientType" validate:"required,oneof=all students specific"`
	RecipientIDs  []string             `json:"recipientIds" validate:"omitempty,dive,required"`
}
