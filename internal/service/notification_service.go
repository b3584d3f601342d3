package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

type notificationStore interface {
	Materialize(ctx context.Context, userID string, role models.UserRole, since time.Time) (int64, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string, exclude []string) (int, error)
	Create(ctx context.Context, n *models.Notification) error
	MarkRead(ctx context.Context, userID, id string, ts time.Time) error
	MarkAllRead(ctx context.Context, userID string, ts time.Time) (int64, error)
	SoftDelete(ctx context.Context, userID, id string, ts time.Time) error
}

// NotificationConfig tunes the feed.
type NotificationConfig struct {
	Window       time.Duration
	DefaultLimit int
	MaxLimit     int
}

// NotificationService builds a user's feed from stored rows, materializing
// recent announcements addressed to the user on read.
type NotificationService struct {
	repo    notificationStore
	metrics *MetricsService
	logger  *zap.Logger
	cfg     NotificationConfig
	now     func() time.Time
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(repo notificationStore, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window <= 0 {
		cfg.Window = 30 * 24 * time.Hour
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	return &NotificationService{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Feed returns one page of the caller's notifications, newest first.
func (s *NotificationService) Feed(ctx context.Context, user models.UserInfo, query dto.NotificationQuery) (*dto.NotificationFeed, error) {
	now := s.now()
	inserted, err := s.repo.Materialize(ctx, user.ID, user.Role, now.Add(-s.cfg.Window))
	if err != nil {
		s.logger.Warn("failed to materialize announcements", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		s.metrics.RecordNotificationsMaterialized(inserted)
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	exclude := cleanIDs(query.Exclude)

	items, total, err := s.repo.List(ctx, models.NotificationFilter{
		UserID:     user.ID,
		UnreadOnly: query.UnreadOnly,
		Exclude:    exclude,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, user.ID, exclude)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return &dto.NotificationFeed{
		Items:       items,
		Pagination:  models.Pagination{Page: page, PageSize: limit, TotalCount: total},
		UnreadCount: unread,
	}, nil
}

// MarkRead marks one notification, or every notification when req.All is set.
func (s *NotificationService) MarkRead(ctx context.Context, userID string, req dto.MarkNotificationsRequest) (*dto.MarkNotificationsResponse, error) {
	now := s.now()
	if req.All {
		updated, err := s.repo.MarkAllRead(ctx, userID, now)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
		}
		return &dto.MarkNotificationsResponse{Updated: updated}, nil
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "id or all is required")
	}
	if err := s.repo.MarkRead(ctx, userID, id, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return &dto.MarkNotificationsResponse{Updated: 1}, nil
}

// Delete hides a notification from the caller's feed permanently.
func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.SoftDelete(ctx, userID, id, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	return nil
}

// Notify stores a direct notification for one user.
func (s *NotificationService) Notify(ctx context.Context, userID string, kind models.NotificationType, title, message string) error {
	n := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      kind,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	return nil
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		for _, part := range strings.Split(raw, ",") {
			id := strings.TrimSpace(part)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
