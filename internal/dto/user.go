package dto

import "github.com/gurukul-lms/gurukul-api/internal/models"

// CreateUserRequest captures POST /admin/users and `admin adduser`.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email,max=254"`
	FullName string          `json:"fullName" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN INSTRUCTOR STUDENT"`
	Active   *bool           `json:"active"`
	Password string          `json:"password" validate:"required,min=8,max=72"`
}

// UpdateUserRequest captures PUT /admin/users/:id. An empty password keeps
// the current one.
type UpdateUserRequest struct {
	FullName string          `json:"fullName" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN INSTRUCTOR STUDENT"`
	Active   *bool           `json:"active"`
	Password string          `json:"password" validate:"omitempty,min=8,max=72"`
}
