package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/gurukul-lms/gurukul-api/internal/models"
)

const notificationColumns = `id, user_id, announcement_id, title, message, type, read, read_at, deleted_at, created_at`

// NotificationRepository stores per-user feed items.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Materialize inserts one notification per announcement addressed to the user
// and sent at or after since that has no row yet. Soft deleted rows count as
// existing, so a deleted announcement notification is never recreated.
func (r *NotificationRepository) Materialize(ctx context.Context, userID string, role models.UserRole, since time.Time) (int64, error) {
	const query = `INSERT INTO notifications (id, user_id, announcement_id, title, message, type, read, created_at)
SELECT gen_random_uuid()::text, $1, a.id, a.subject, a.message, 'announcement', FALSE, a.sent_at
FROM announcements a
WHERE a.sent_at >= $3
  AND (a.recipient_type = 'all'
       OR (a.recipient_type = 'students' AND $2 = 'STUDENT')
       OR (a.recipient_type = 'specific' AND $1 = ANY(a.recipient_ids)))
  AND NOT EXISTS (SELECT 1 FROM notifications n WHERE n.user_id = $1 AND n.announcement_id = a.id)
ON CONFLICT (user_id, announcement_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, userID, string(role), since)
	if err != nil {
		return 0, fmt.Errorf("materialize notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// List returns a page of the user's feed, newest first, and the matching total.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	where, args := feedConditions(filter.UserID, filter.Exclude)
	if filter.UnreadOnly {
		where = append(where, "read = FALSE")
	}
	clause := " WHERE " + strings.Join(where, " AND ")
	_, size, offset := normalizePage(filter.Page, filter.Limit)

	query := fmt.Sprintf("SELECT %s FROM notifications%s ORDER BY created_at DESC, id LIMIT %d OFFSET %d", notificationColumns, clause, size, offset)
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return items, total, nil
}

// CountUnread counts unread, non-deleted items outside exclude.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string, exclude []string) (int, error) {
	where, args := feedConditions(userID, exclude)
	where = append(where, "read = FALSE")
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications WHERE "+strings.Join(where, " AND "), args...); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return total, nil
}

// Create inserts a system or course notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Type == "" {
		n.Type = models.NotificationSystem
	}
	const query = `INSERT INTO notifications (` + notificationColumns + `)
VALUES (:id, :user_id, :announcement_id, :title, :message, :type, :read, :read_at, :deleted_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// MarkRead marks one of the user's notifications read. Unknown ids yield sql.ErrNoRows.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string, ts time.Time) error {
	const query = `UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3) WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, userID, ts)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectOneRow(res, "mark notification read")
}

// MarkAllRead marks every unread notification of the user read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, ts time.Time) (int64, error) {
	const query = `UPDATE notifications SET read = TRUE, read_at = $2 WHERE user_id = $1 AND read = FALSE AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, userID, ts)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SoftDelete hides a notification from every future feed.
func (r *NotificationRepository) SoftDelete(ctx context.Context, userID, id string, ts time.Time) error {
	const query = `UPDATE notifications SET deleted_at = $3 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, userID, ts)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return expectOneRow(res, "delete notification")
}

func feedConditions(userID string, exclude []string) ([]string, []interface{}) {
	where := []string{"user_id = $1", "deleted_at IS NULL"}
	args := []interface{}{userID}
	if len(exclude) > 0 {
		where = append(where, fmt.Sprintf("NOT (id = ANY($%d))", len(args)+1))
		args = append(args, pq.Array(exclude))
	}
	return where, args
}
