package dto

import "github.com/gurukul-lms/gurukul-api/internal/models"

// CourseRequest is the admin create/update payload. Node ids are optional and
// generated when missing.
type CourseRequest struct {
	Title       string           `json:"title" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=5000"`
	Thumbnail   string           `json:"thumbnail" validate:"omitempty,url"`
	Sections    []models.Section `json:"sections" validate:"dive"`
}
