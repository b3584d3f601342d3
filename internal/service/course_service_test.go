package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

func courseRequest(lectureIDs ...string) dto.CourseRequest {
	lectures := make([]models.Lecture, 0, len(lectureIDs))
	for _, id := range lectureIDs {
		lectures = append(lectures, models.Lecture{ID: id, Title: "Lecture " + id})
	}
	return dto.CourseRequest{
		Title: "Distributed Systems",
		Sections: []models.Section{{
			Title:    "Foundations",
			Chapters: []models.Chapter{{Title: "Clocks", Lectures: lectures}},
		}},
	}
}

func newCourseFixture() (*CourseService, *memCourseRepo, *auditRecorder, *memCacheRepo) {
	repo := newMemCourseRepo(twoLectureCourse())
	audit := &auditRecorder{}
	cacheRepo := newMemCacheRepo()
	cache := NewCacheService(cacheRepo, nil, 0, nil, true)
	return NewCourseService(repo, audit, cache, nil, nil), repo, audit, cacheRepo
}

func TestCreateCourseAssignsIDsAndIndexes(t *testing.T) {
	svc, repo, audit, cacheRepo := newCourseFixture()

	course, err := svc.Create(context.Background(), courseRequest("", ""), "admin-1", models.RequestMeta{IP: "127.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, course.ID)
	assert.NotEmpty(t, course.Sections[0].ID)
	assert.NotEmpty(t, course.Sections[0].Chapters[0].ID)

	for _, id := range course.LectureIDs() {
		require.NotEmpty(t, id)
		owner, err := repo.FindCourseIDByLecture(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, course.ID, owner)
	}
	assert.Equal(t, []string{models.AuditActionCourseCreate}, audit.actions())
	assert.Equal(t, []string{statsCachePattern}, cacheRepo.invalidated)
}

func TestCreateCourseRejectsDuplicateLectureIDs(t *testing.T) {
	svc, _, _, _ := newCourseFixture()

	_, err := svc.Create(context.Background(), courseRequest("x", "x"), "admin-1", models.RequestMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "x", appErr.Details["lectureId"])
}

func TestCreateCourseLectureIDCollisionIsConflict(t *testing.T) {
	svc, _, _, _ := newCourseFixture()

	_, err := svc.Create(context.Background(), courseRequest("lec-1"), "admin-1", models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestCreateCourseValidatesTitle(t *testing.T) {
	svc, _, _, _ := newCourseFixture()
	req := courseRequest("a")
	req.Title = ""

	_, err := svc.Create(context.Background(), req, "admin-1", models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestUpdateCourseRewritesIndex(t *testing.T) {
	svc, repo, audit, _ := newCourseFixture()

	_, err := svc.Update(context.Background(), "course-1", courseRequest("lec-1", "lec-3"), "admin-1", models.RequestMeta{})
	require.NoError(t, err)

	_, err = repo.FindCourseIDByLecture(context.Background(), "lec-2")
	assert.Error(t, err)
	owner, err := repo.FindCourseIDByLecture(context.Background(), "lec-3")
	require.NoError(t, err)
	assert.Equal(t, "course-1", owner)
	assert.Equal(t, []string{models.AuditActionCourseUpdate}, audit.actions())
}

func TestDeleteCourseDropsIndex(t *testing.T) {
	svc, repo, audit, _ := newCourseFixture()

	require.NoError(t, svc.Delete(context.Background(), "course-1", "admin-1", models.RequestMeta{}))
	_, err := repo.FindCourseIDByLecture(context.Background(), "lec-1")
	assert.Error(t, err)
	assert.Equal(t, []string{models.AuditActionCourseDelete}, audit.actions())

	err = svc.Delete(context.Background(), "course-1", "admin-1", models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestListCoursesReturnsSummaries(t *testing.T) {
	svc, _, _, _ := newCourseFixture()

	items, page, err := svc.List(context.Background(), models.CourseFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].TotalLectures)
	assert.Equal(t, 1, page.TotalCount)
}

func TestReindexVisitsEveryCourse(t *testing.T) {
	svc, repo, _, _ := newCourseFixture()
	delete(repo.index, "lec-2")

	n, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	owner, err := repo.FindCourseIDByLecture(context.Background(), "lec-2")
	require.NoError(t, err)
	assert.Equal(t, "course-1", owner)
}
