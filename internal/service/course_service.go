package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/internal/repository"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	ListAll(ctx context.Context) ([]models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Reindex(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type auditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

const statsCachePattern = "stats:admin:*"

// CourseService manages the course catalog and keeps the lecture index in step
// with every course tree it writes.
type CourseService struct {
	repo      courseRepository
	audit     auditLogWriter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	newID     func() string
	now       func() time.Time
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, audit auditLogWriter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{
		repo:      repo,
		audit:     audit,
		cache:     cache,
		validator: validate,
		logger:    logger,
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns catalog summaries with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	summaries := make([]models.CourseSummary, 0, len(courses))
	for i := range courses {
		summaries = append(summaries, courses[i].Summary())
	}
	return summaries, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one course with its full tree.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create stores a new course and indexes its lectures.
func (s *CourseService) Create(ctx context.Context, req dto.CourseRequest, actorID string, meta models.RequestMeta) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	now := s.now()
	course := &models.Course{
		ID:          s.newID(),
		Title:       req.Title,
		Description: req.Description,
		Thumbnail:   req.Thumbnail,
		Sections:    models.Sections(req.Sections),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actorID != "" {
		course.CreatedBy = &actorID
	}
	if err := s.prepareTree(course); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, mapCourseWriteError(err, "failed to create course")
	}

	s.recordAudit(ctx, models.AuditActionCourseCreate, course.ID, nil, courseAuditPayload(course), actorID, meta)
	s.invalidateStats(ctx)
	return course, nil
}

// Update replaces the course fields and tree.
func (s *CourseService) Update(ctx context.Context, id string, req dto.CourseRequest, actorID string, meta models.RequestMeta) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldPayload := courseAuditPayload(course)

	course.Title = req.Title
	course.Description = req.Description
	course.Thumbnail = req.Thumbnail
	course.Sections = models.Sections(req.Sections)
	course.UpdatedAt = s.now()
	if err := s.prepareTree(course); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, mapCourseWriteError(err, "failed to update course")
	}

	s.recordAudit(ctx, models.AuditActionCourseUpdate, course.ID, oldPayload, courseAuditPayload(course), actorID, meta)
	return course, nil
}

// Delete removes a course and its index rows. Enrollments are left in place.
func (s *CourseService) Delete(ctx context.Context, id string, actorID string, meta models.RequestMeta) error {
	course, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.recordAudit(ctx, models.AuditActionCourseDelete, id, courseAuditPayload(course), nil, actorID, meta)
	s.invalidateStats(ctx)
	return nil
}

// Reindex rebuilds the lecture index from every stored course and returns the
// number of courses processed.
func (s *CourseService) Reindex(ctx context.Context) (int, error) {
	courses, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	for i := range courses {
		if err := s.repo.Reindex(ctx, &courses[i]); err != nil {
			return i, mapCourseWriteError(err, "failed to reindex course "+courses[i].ID)
		}
	}
	return len(courses), nil
}

func (s *CourseService) prepareTree(course *models.Course) error {
	course.AssignIDs(s.newID)
	if id, dup := course.DuplicateLectureID(); dup {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "lecture ids must be unique within a course"),
			map[string]interface{}{"lectureId": id},
		)
	}
	return nil
}

func (s *CourseService) recordAudit(ctx context.Context, action, courseID string, oldValues, newValues []byte, actorID string, meta models.RequestMeta) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "courses",
		ResourceID: &courseID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record course audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *CourseService) invalidateStats(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, statsCachePattern)
}

func mapCourseWriteError(err error, message string) error {
	if errors.Is(err, repository.ErrLectureIDTaken) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "lecture id already belongs to another course")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func courseAuditPayload(course *models.Course) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"title":         course.Title,
		"totalLectures": course.TotalLectures(),
	})
	return payload
}

func pagination(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
