package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/internal/repository"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

type lectureCourseLocator interface {
	FindCourseIDByLecture(ctx context.Context, lectureID string) (string, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type lectureProgressStore interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	UpdateVersioned(ctx context.Context, enrollment *models.Enrollment, expectedVersion int) error
	TouchLastAccessed(ctx context.Context, id string, ts time.Time) error
}

// LectureServiceConfig tunes optimistic write retries.
type LectureServiceConfig struct {
	MaxRetries int
}

// LectureService serves lecture content and records completion.
type LectureService struct {
	courses     lectureCourseLocator
	enrollments lectureProgressStore
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         LectureServiceConfig
	now         func() time.Time
}

// NewLectureService constructs a LectureService.
func NewLectureService(courses lectureCourseLocator, enrollments lectureProgressStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg LectureServiceConfig) *LectureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &LectureService{
		courses:     courses,
		enrollments: enrollments,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a lecture with its neighbours and the caller's progress.
func (s *LectureService) Get(ctx context.Context, userID, lectureID string) (*dto.LectureDetail, error) {
	course, loc, err := s.locate(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.enrollment(ctx, userID, course.ID)
	if err != nil {
		return nil, err
	}

	if err := s.enrollments.TouchLastAccessed(ctx, enrollment.ID, s.now()); err != nil {
		s.logger.Warn("failed to bump last access", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
	}

	return &dto.LectureDetail{
		Lecture:           loc.Lecture,
		CourseID:          course.ID,
		CourseTitle:       course.Title,
		SectionID:         loc.SectionID,
		SectionTitle:      loc.SectionTitle,
		ChapterID:         loc.ChapterID,
		ChapterTitle:      loc.ChapterTitle,
		IsCompleted:       enrollment.CompletedLectures.Contains(lectureID),
		Progress:          course.ProgressFor(enrollment.CompletedLectures.IDs()),
		PreviousLectureID: optionalID(loc.PrevLectureID),
		NextLectureID:     optionalID(loc.NextLectureID),
		Version:           enrollment.Version,
	}, nil
}

// Toggle marks lectureID complete or incomplete for userID. When ifMatch is
// set the write only applies to that enrollment version; otherwise a lost
// race is retried from a fresh read.
func (s *LectureService) Toggle(ctx context.Context, userID, lectureID string, req dto.ToggleLectureRequest, ifMatch *int) (*dto.ToggleLectureResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid toggle payload")
	}
	completed := *req.Completed

	course, _, err := s.locate(ctx, lectureID)
	if err != nil {
		return nil, err
	}

	var enrollment *models.Enrollment
	for attempt := 0; ; attempt++ {
		enrollment, err = s.enrollment(ctx, userID, course.ID)
		if err != nil {
			return nil, err
		}
		if ifMatch != nil && *ifMatch != enrollment.Version {
			return nil, versionMismatch(enrollment.Version)
		}

		expected := enrollment.Version
		enrollment.ApplyCompletion(course, lectureID, completed, s.now())
		err = s.enrollments.UpdateVersioned(ctx, enrollment, expected)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save progress")
		}
		s.metrics.RecordVersionConflict()
		// With If-Match the next read reports the winning version as a 412.
		if ifMatch == nil && attempt >= s.cfg.MaxRetries {
			s.logger.Warn("progress write retries exhausted",
				zap.String("enrollment_id", enrollment.ID),
				zap.Int("attempts", attempt+1))
			return nil, appErrors.Clone(appErrors.ErrConflict, "progress was modified concurrently, retry the request")
		}
	}
	s.metrics.RecordLectureToggle(completed)

	snapshot := course.ProgressFor(enrollment.CompletedLectures.IDs())
	return &dto.ToggleLectureResponse{
		LectureID:           lectureID,
		CourseID:            course.ID,
		Completed:           completed,
		CompletedLectures:   snapshot.Completed,
		CompletedLectureIDs: course.CompletedIn(enrollment.CompletedLectures.IDs()),
		TotalLectures:       snapshot.Total,
		Progress:            snapshot.Percentage,
		Status:              enrollment.Status,
		Version:             enrollment.Version,
	}, nil
}

// locate resolves a lecture through the lecture index. A missing index row, a
// missing course and a lecture absent from the tree all read as not found.
func (s *LectureService) locate(ctx context.Context, lectureID string) (*models.Course, models.LectureLocation, error) {
	notFound := appErrors.Clone(appErrors.ErrNotFound, "lecture not found")

	courseID, err := s.courses.FindCourseIDByLecture(ctx, lectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.LectureLocation{}, notFound
		}
		return nil, models.LectureLocation{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lecture")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("lecture index points at missing course", zap.String("lecture_id", lectureID), zap.String("course_id", courseID))
			return nil, models.LectureLocation{}, notFound
		}
		return nil, models.LectureLocation{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	loc, ok := course.FindLecture(lectureID)
	if !ok {
		s.logger.Warn("stale lecture index entry", zap.String("lecture_id", lectureID), zap.String("course_id", courseID))
		return nil, models.LectureLocation{}, notFound
	}
	return course, loc, nil
}

func (s *LectureService) enrollment(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func versionMismatch(current int) error {
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment version does not match If-Match"),
		map[string]interface{}{"currentVersion": current},
	)
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
