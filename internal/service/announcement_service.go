package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

type announcementStore interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

type recipientCounter interface {
	CountActive(ctx context.Context, role *models.UserRole) (int, error)
	CountExisting(ctx context.Context, ids []string) (int, error)
}

// AnnouncementService manages admin broadcasts. Announcements are write-once.
type AnnouncementService struct {
	repo       announcementStore
	recipients recipientCounter
	audit      auditLogWriter
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewAnnouncementService constructs an AnnouncementService.
func NewAnnouncementService(repo announcementStore, recipients recipientCounter, audit auditLogWriter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AnnouncementService{
		repo:       repo,
		recipients: recipients,
		audit:      audit,
		cache:      cache,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create sends an announcement from sender. Feeds pick it up on their next read.
func (s *AnnouncementService) Create(ctx context.Context, sender models.UserInfo, req dto.CreateAnnouncementRequest, meta models.RequestMeta) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	var ids []string
	if req.RecipientType == models.RecipientSpecific {
		ids = cleanIDs(req.RecipientIDs)
		if len(ids) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "recipientIds is required for specific announcements")
		}
	}
	count, err := s.countRecipients(ctx, req.RecipientType, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count recipients")
	}

	now := s.now()
	announcement := &models.Announcement{
		ID:             uuid.NewString(),
		Subject:        strings.TrimSpace(req.Subject),
		Message:        req.Message,
		RecipientType:  req.RecipientType,
		RecipientIDs:   ids,
		RecipientCount: count,
		SenderID:       sender.ID,
		SenderName:     sender.FullName,
		SentAt:         now,
		CreatedAt:      now,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"subject":        announcement.Subject,
		"recipientType":  announcement.RecipientType,
		"recipientCount": announcement.RecipientCount,
	})
	s.recordAudit(ctx, models.AuditActionAnnouncementCreate, announcement.ID, nil, payload, sender.ID, meta)
	_ = s.cache.Invalidate(ctx, statsCachePattern)
	return announcement, nil
}

// List returns a page of announcements, newest first.
func (s *AnnouncementService) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, *models.Pagination, error) {
	if filter.RecipientType != "" {
		switch filter.RecipientType {
		case models.RecipientAll, models.RecipientStudents, models.RecipientSpecific:
		default:
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid recipientType filter")
		}
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	if items == nil {
		items = []models.Announcement{}
	}
	return items, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one announcement.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	announcement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return announcement, nil
}

// Delete removes an announcement. Notifications already materialized stay in
// their owners' feeds.
func (s *AnnouncementService) Delete(ctx context.Context, id, actorID string, meta models.RequestMeta) error {
	announcement, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	payload, _ := json.Marshal(map[string]interface{}{"subject": announcement.Subject})
	s.recordAudit(ctx, models.AuditActionAnnouncementDelete, id, payload, nil, actorID, meta)
	_ = s.cache.Invalidate(ctx, statsCachePattern)
	return nil
}

func (s *AnnouncementService) countRecipients(ctx context.Context, recipientType models.RecipientType, ids []string) (int, error) {
	switch recipientType {
	case models.RecipientStudents:
		role := models.RoleStudent
		return s.recipients.CountActive(ctx, &role)
	case models.RecipientSpecific:
		return s.recipients.CountExisting(ctx, ids)
	default:
		return s.recipients.CountActive(ctx, nil)
	}
}

func (s *AnnouncementService) recordAudit(ctx context.Context, action, id string, oldValues, newValues []byte, actorID string, meta models.RequestMeta) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "announcements",
		ResourceID: &id,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record announcement audit log", zap.String("action", action), zap.Error(err))
	}
}
