package dto

import "github.com/gurukul-lms/gurukul-api/internal/models"

// NotificationQuery captures feed query parameters.
type NotificationQuery struct {
	Page       int
	Limit      int
	UnreadOnly bool
	Exclude    []string
}

// NotificationFeed is one page of the caller's feed.
type NotificationFeed struct {
	Items       []models.Notification `json:"items"`
	Pagination  models.Pagination     `json:"-"`
	UnreadCount int                   `json:"-"`
}

// MarkNotificationsRequest marks one notification, or all of them, as read.
type MarkNotificationsRequest struct {
	ID  string `json:"id"`
	All bool   `json:"all"`
}

// MarkNotificationsResponse reports how many rows changed.
type MarkNotificationsResponse struct {
	Updated int64 `json:"updated"`
}
