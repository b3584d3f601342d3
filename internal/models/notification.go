package models

import "time"

// NotificationType classifies feed items.
type NotificationType string

const (
	NotificationAnnouncement NotificationType = "announcement"
	NotificationSystem       NotificationType = "system"
	NotificationCourse       NotificationType = "course"
)

// Notification is a per-user feed item, optionally materialized from an announcement.
type Notification struct {
	ID             string           `db:"id" json:"id"`
	UserID         string           `db:"user_id" json:"userId"`
	AnnouncementID *string          `db:"announcement_id" json:"announcementId,omitempty"`
	Title          string           `db:"title" json:"title"`
	Message        string           `db:"message" json:"message"`
	Type           NotificationType `db:"type" json:"type"`
	Read           bool             `db:"read" json:"read"`
	ReadAt         *time.Time       `db:"read_at" json:"readAt,omitempty"`
	DeletedAt      *time.Time       `db:"deleted_at" json:"-"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}

// NotificationFilter selects a page of one user's feed.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Exclude    []string
	Page       int
	Limit      int
}
