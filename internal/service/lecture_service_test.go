package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

func newLectureFixture(t *testing.T, enrollments ...models.Enrollment) (*LectureService, *memEnrollmentRepo) {
	t.Helper()
	courses := newMemCourseRepo(twoLectureCourse())
	store := newMemEnrollmentRepo(enrollments...)
	svc := NewLectureService(courses, store, NewMetricsService(), nil, nil, LectureServiceConfig{MaxRetries: 2})
	return svc, store
}

func activeEnrollment() models.Enrollment {
	return models.Enrollment{
		ID:             "enr-1",
		UserID:         "stu-1",
		CourseID:       "course-1",
		Status:         models.EnrollmentStatusActive,
		Version:        1,
		EnrolledAt:     time.Now().Add(-time.Hour),
		LastAccessedAt: time.Now().Add(-time.Hour),
	}
}

func toggle(completed bool) dto.ToggleLectureRequest {
	return dto.ToggleLectureRequest{Completed: boolPtr(completed)}
}

func TestToggleWalksProgressThroughCompletionAndBack(t *testing.T) {
	svc, store := newLectureFixture(t, activeEnrollment())
	ctx := context.Background()

	res, err := svc.Toggle(ctx, "stu-1", "lec-1", toggle(true), nil)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Progress)
	assert.Equal(t, models.EnrollmentStatusActive, res.Status)
	assert.Equal(t, 2, res.Version)

	res, err = svc.Toggle(ctx, "stu-1", "lec-2", toggle(true), nil)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Progress)
	assert.Equal(t, models.EnrollmentStatusCompleted, res.Status)
	assert.NotNil(t, store.get("enr-1").CompletedAt)

	res, err = svc.Toggle(ctx, "stu-1", "lec-2", toggle(false), nil)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Progress)
	assert.Equal(t, models.EnrollmentStatusActive, res.Status)
	assert.Equal(t, []string{"lec-1"}, res.CompletedLectureIDs)
	assert.Nil(t, store.get("enr-1").CompletedAt)
}

func TestToggleReportsOnlyLecturesStillInTheCourse(t *testing.T) {
	enrollment := activeEnrollment()
	enrollment.CompletedLectures = models.CompletedLectures{{LectureID: "removed-lecture"}}
	svc, store := newLectureFixture(t, enrollment)

	res, err := svc.Toggle(context.Background(), "stu-1", "lec-1", toggle(true), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"lec-1"}, res.CompletedLectureIDs)
	assert.Equal(t, 1, res.CompletedLectures)
	assert.Equal(t, 2, res.TotalLectures)
	assert.Equal(t, 50, res.Progress)
	assert.Len(t, store.get("enr-1").CompletedLectures, 2, "stored history is kept")
}

func TestToggleIsIdempotent(t *testing.T) {
	svc, store := newLectureFixture(t, activeEnrollment())
	ctx := context.Background()

	_, err := svc.Toggle(ctx, "stu-1", "lec-1", toggle(true), nil)
	require.NoError(t, err)
	res, err := svc.Toggle(ctx, "stu-1", "lec-1", toggle(true), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CompletedLectures)
	assert.Len(t, store.get("enr-1").CompletedLectures, 1)

	res, err = svc.Toggle(ctx, "stu-1", "lec-2", toggle(false), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CompletedLectures)
	assert.Equal(t, 50, res.Progress)
}

func TestTogglePausedEnrollmentStaysPaused(t *testing.T) {
	paused := activeEnrollment()
	paused.Status = models.EnrollmentStatusPaused
	svc, _ := newLectureFixture(t, paused)

	res, err := svc.Toggle(context.Background(), "stu-1", "lec-1", toggle(true), nil)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPaused, res.Status)
}

func TestToggleWithoutEnrollmentIsForbiddenAndCreatesNothing(t *testing.T) {
	svc, store := newLectureFixture(t)

	_, err := svc.Toggle(context.Background(), "stu-9", "lec-1", toggle(true), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))
	assert.Equal(t, 0, store.count())
}

func TestToggleUnknownLectureIsNotFound(t *testing.T) {
	svc, _ := newLectureFixture(t, activeEnrollment())

	_, err := svc.Toggle(context.Background(), "stu-1", "nope", toggle(true), nil)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestToggleRejectsMissingCompletedFlag(t *testing.T) {
	svc, _ := newLectureFixture(t, activeEnrollment())

	_, err := svc.Toggle(context.Background(), "stu-1", "lec-1", dto.ToggleLectureRequest{}, nil)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestToggleIfMatchMismatchIsPreconditionFailed(t *testing.T) {
	svc, store := newLectureFixture(t, activeEnrollment())

	_, err := svc.Toggle(context.Background(), "stu-1", "lec-1", toggle(true), intPtr(7))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Equal(t, 1, appErr.Details["currentVersion"])
	assert.Empty(t, store.get("enr-1").CompletedLectures)
}

func TestToggleIfMatchLosingRaceIsPreconditionFailed(t *testing.T) {
	svc, store := newLectureFixture(t, activeEnrollment())
	store.beforeUpdate = func(attempt int) {
		if attempt == 1 {
			store.bump("enr-1")
		}
	}

	_, err := svc.Toggle(context.Background(), "stu-1", "lec-1", toggle(true), intPtr(1))
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestToggleRetriesLostRaceFromFreshRead(t *testing.T) {
	svc, store := newLectureFixture(t, activeEnrollment())
	store.beforeUpdate = func(attempt int) {
		if attempt == 1 {
			store.bump("enr-1")
		}
	}

	res, err := svc.Toggle(context.Background(), "stu-1", "lec-1", toggle(true), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Version)
	assert.Equal(t, 2, store.updates)
}

func TestToggleGivesUpAfterMaxRetries(t *testing.T) {
	svc, store := newLectureFixture(t, activeEnrollment())
	store.beforeUpdate = func(int) { store.bump("enr-1") }

	_, err := svc.Toggle(context.Background(), "stu-1", "lec-1", toggle(true), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, 3, store.updates)
}

func TestGetLectureReturnsNeighboursAndTouchesAccess(t *testing.T) {
	enrollment := activeEnrollment()
	enrollment.CompletedLectures = models.CompletedLectures{{LectureID: "lec-2"}}
	svc, store := newLectureFixture(t, enrollment)

	detail, err := svc.Get(context.Background(), "stu-1", "lec-2")
	require.NoError(t, err)
	require.NotNil(t, detail.PreviousLectureID)
	assert.Equal(t, "lec-1", *detail.PreviousLectureID)
	assert.Nil(t, detail.NextLectureID)
	assert.True(t, detail.IsCompleted)
	assert.Equal(t, 50, detail.Progress.Percentage)
	assert.Equal(t, "Intro", detail.SectionTitle)
	assert.Equal(t, "Go Basics", detail.CourseTitle)
	assert.Equal(t, 1, store.touched)
}

func TestGetLectureStaleIndexIsNotFound(t *testing.T) {
	courses := newMemCourseRepo(twoLectureCourse())
	courses.index["ghost"] = "course-1"
	svc := NewLectureService(courses, newMemEnrollmentRepo(activeEnrollment()), nil, nil, nil, LectureServiceConfig{})

	_, err := svc.Get(context.Background(), "stu-1", "ghost")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestGetLectureNotEnrolled(t *testing.T) {
	svc, _ := newLectureFixture(t)

	_, err := svc.Get(context.Background(), "stu-1", "lec-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))
}
