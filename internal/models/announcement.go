package models

import (
	"time"

	"github.com/lib/pq"
)

// RecipientType selects who receives an announcement.
type RecipientType string

const (
	RecipientAll      RecipientType = "all"
	RecipientStudents RecipientType = "students"
	RecipientSpecific RecipientType = "specific"
)

// Announcement is an admin authored broadcast. Rows are never updated.
type Announcement struct {
	ID             string         `db:"id" json:"id"`
	Subject        string         `db:"subject" json:"subject"`
	Message        string         `db:"message" json:"message"`
	RecipientType  RecipientType  `db:"recipient_type" json:"recipientType"`
	RecipientIDs   pq.StringArray `db:"recipient_ids" json:"recipientIds,omitempty"`
	RecipientCount int            `db:"recipient_count" json:"recipientCount"`
	SenderID       string         `db:"sender_id" json:"senderId"`
	SenderName     string         `db:"sender_name" json:"senderName"`
	SentAt         time.Time      `db:"sent_at" json:"sentAt"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
}

// AnnouncementFilter pages the admin listing.
type AnnouncementFilter struct {
	RecipientType RecipientType
	Page          int
	PageSize      int
}

// AddressedTo reports whether the announcement targets the given user.
func (a *Announcement) AddressedTo(userID string, role UserRole) bool {
	switch a.RecipientType {
	case RecipientAll:
		return true
	case RecipientStudents:
		return role == RoleStudent
	case RecipientSpecific:
		for _, id := range a.RecipientIDs {
			if id == userID {
				return true
			}
		}
	}
	return false
}
