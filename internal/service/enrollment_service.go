package service

import (
	"context"
	"database/sql"
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

type enrollmentStore interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateVersioned(ctx context.Context, enrollment *models.Enrollment, expectedVersion int) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Course, error)
}

// EnrollmentService lists and creates a student's enrollments.
type EnrollmentService struct {
	enrollments enrollmentStore
	courses     courseReader
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(enrollments enrollmentStore, courses courseReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		courses:     courses,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ListEnrolled returns the user's enrollments ordered by last access. Progress
// is recomputed from the current course tree; enrollments whose course no
// longer exists are skipped.
func (s *EnrollmentService) ListEnrolled(ctx context.Context, userID string) ([]dto.EnrolledCourse, error) {
	enrollments, err := s.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if len(enrollments) == 0 {
		return []dto.EnrolledCourse{}, nil
	}

	ids := make([]string, 0, len(enrollments))
	seen := make(map[string]struct{}, len(enrollments))
	for _, e := range enrollments {
		if _, ok := seen[e.CourseID]; ok {
			continue
		}
		seen[e.CourseID] = struct{}{}
		ids = append(ids, e.CourseID)
	}
	courses, err := s.courses.ListByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	byID := make(map[string]*models.Course, len(courses))
	for i := range courses {
		byID[courses[i].ID] = &courses[i]
	}

	now := s.now()
	items := make([]dto.EnrolledCourse, 0, len(enrollments))
	for i := range enrollments {
		course, ok := byID[enrollments[i].CourseID]
		if !ok {
			s.logger.Debug("skipping enrollment of missing course",
				zap.String("enrollment_id", enrollments[i].ID),
				zap.String("course_id", enrollments[i].CourseID))
			continue
		}
		items = append(items, enrolledCourse(&enrollments[i], course, now))
	}
	return items, nil
}

// Enroll creates an enrollment of userID in the requested course. An existing
// enrollment yields ALREADY_ENROLLED carrying its id.
func (s *EnrollmentService) Enroll(ctx context.Context, userID string, req dto.EnrollRequest) (*dto.EnrolledCourse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	existing, err := s.enrollments.FindByUserAndCourse(ctx, userID, course.ID)
	switch {
	case err == nil:
		return nil, alreadyEnrolled(existing.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	now := s.now()
	enrollment := &models.Enrollment{
		ID:                uuid.NewString(),
		UserID:            userID,
		CourseID:          course.ID,
		EnrolledAt:        now,
		LastAccessedAt:    now,
		Progress:          0,
		CompletedLectures: models.CompletedLectures{},
		Status:            models.EnrollmentStatusActive,
		Version:           1,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			if winner, findErr := s.enrollments.FindByUserAndCourse(ctx, userID, course.ID); findErr == nil {
				return nil, alreadyEnrolled(winner.ID)
			}
			return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.metrics.RecordEnrollmentCreated()

	item := enrolledCourse(enrollment, course, now)
	return &item, nil
}

// UpdateStatus lets a student pause or resume an enrollment. Completed
// enrollments keep their status.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, userID, courseID string, req dto.EnrollmentStatusRequest) (*dto.EnrolledCourse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "completed enrollments cannot change status")
	}

	now := s.now()
	if enrollment.Status != req.Status {
		expected := enrollment.Version
		enrollment.Status = req.Status
		enrollment.LastAccessedAt = now
		if err := s.enrollments.UpdateVersioned(ctx, enrollment, expected); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				s.metrics.RecordVersionConflict()
				return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment was modified concurrently")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
		}
	}

	item := enrolledCourse(enrollment, course, now)
	return &item, nil
}

// enrolledCourse derives progress and status from the current tree, so a
// course that grew after completion lists as active again.
func enrolledCourse(e *models.Enrollment, course *models.Course, now time.Time) dto.EnrolledCourse {
	completedIDs := course.CompletedIn(e.CompletedLectures.IDs())
	snapshot := course.ProgressFor(completedIDs)
	return dto.EnrolledCourse{
		EnrollmentID:        e.ID,
		Course:              course.Summary(),
		TotalLectures:       snapshot.Total,
		CompletedLectures:   snapshot.Completed,
		CompletedLectureIDs: completedIDs,
		Progress:            snapshot.Percentage,
		Status:              models.StatusFor(e.Status, snapshot.Percentage),
		EnrolledAt:          e.EnrolledAt,
		LastAccessedAt:      e.LastAccessedAt,
		LastAccessed:        models.TimeAgo(e.LastAccessedAt, now),
		Version:             e.Version,
	}
}

func alreadyEnrolled(enrollmentID string) error {
	return appErrors.WithDetails(appErrors.ErrAlreadyEnrolled, map[string]interface{}{"enrollmentId": enrollmentID})
}
