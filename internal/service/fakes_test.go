package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/internal/repository"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

type memCourseRepo struct {
	mu      sync.Mutex
	courses map[string]models.Course
	index   map[string]string
	listErr error
}

func newMemCourseRepo(courses ...models.Course) *memCourseRepo {
	r := &memCourseRepo{courses: map[string]models.Course{}, index: map[string]string{}}
	for i := range courses {
		_ = r.Create(context.Background(), &courses[i])
	}
	return r
}

func (r *memCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := cloneCourse(c)
	return &clone, nil
}

func (r *memCourseRepo) ListByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Course
	for _, id := range ids {
		if c, ok := r.courses[id]; ok {
			out = append(out, cloneCourse(c))
		}
	}
	return out, nil
}

func (r *memCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	var out []models.Course
	for _, c := range all {
		if filter.Search == "" || strings.Contains(strings.ToLower(c.Title), strings.ToLower(filter.Search)) {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (r *memCourseRepo) ListAll(ctx context.Context) ([]models.Course, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Course, 0, len(r.courses))
	for _, c := range r.courses {
		out = append(out, cloneCourse(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (r *memCourseRepo) FindCourseIDByLecture(ctx context.Context, lectureID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.index[lectureID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return id, nil
}

func (r *memCourseRepo) Create(ctx context.Context, course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkIndex(course); err != nil {
		return err
	}
	r.courses[course.ID] = cloneCourse(*course)
	r.writeIndex(course)
	return nil
}

func (r *memCourseRepo) Update(ctx context.Context, course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	if err := r.checkIndex(course); err != nil {
		return err
	}
	r.courses[course.ID] = cloneCourse(*course)
	r.writeIndex(course)
	return nil
}

func (r *memCourseRepo) Reindex(ctx context.Context, course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeIndex(course)
	return nil
}

func (r *memCourseRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.courses, id)
	for lecture, courseID := range r.index {
		if courseID == id {
			delete(r.index, lecture)
		}
	}
	return nil
}

func (r *memCourseRepo) checkIndex(course *models.Course) error {
	for _, id := range course.LectureIDs() {
		if owner, ok := r.index[id]; ok && owner != course.ID {
			return repository.ErrLectureIDTaken
		}
	}
	return nil
}

func (r *memCourseRepo) writeIndex(course *models.Course) {
	for lecture, courseID := range r.index {
		if courseID == course.ID {
			delete(r.index, lecture)
		}
	}
	for _, id := range course.LectureIDs() {
		r.index[id] = course.ID
	}
}

func cloneCourse(c models.Course) models.Course {
	data, _ := json.Marshal(c.Sections)
	var sections models.Sections
	_ = json.Unmarshal(data, &sections)
	c.Sections = sections
	return c
}

type memEnrollmentRepo struct {
	mu          sync.Mutex
	enrollments map[string]models.Enrollment
	// beforeUpdate runs inside UpdateVersioned before the version check.
	beforeUpdate func(attempt int)
	updates      int
	creates      int
	touched      int
	raceOnCreate bool
}

func newMemEnrollmentRepo(enrollments ...models.Enrollment) *memEnrollmentRepo {
	r := &memEnrollmentRepo{enrollments: map[string]models.Enrollment{}}
	for _, e := range enrollments {
		r.enrollments[e.ID] = cloneEnrollment(e)
	}
	return r
}

func (r *memEnrollmentRepo) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			clone := cloneEnrollment(e)
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memEnrollmentRepo) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Enrollment
	for _, e := range r.enrollments {
		if e.UserID == userID {
			out = append(out, cloneEnrollment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessedAt.After(out[j].LastAccessedAt) })
	return out, nil
}

func (r *memEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raceOnCreate {
		winner := cloneEnrollment(*enrollment)
		winner.ID = "winner"
		r.enrollments[winner.ID] = winner
		return repository.ErrDuplicate
	}
	for _, e := range r.enrollments {
		if e.UserID == enrollment.UserID && e.CourseID == enrollment.CourseID {
			return repository.ErrDuplicate
		}
	}
	r.creates++
	r.enrollments[enrollment.ID] = cloneEnrollment(*enrollment)
	return nil
}

func (r *memEnrollmentRepo) UpdateVersioned(ctx context.Context, enrollment *models.Enrollment, expectedVersion int) error {
	r.mu.Lock()
	r.updates++
	hook := r.beforeUpdate
	attempt := r.updates
	r.mu.Unlock()
	if hook != nil {
		hook(attempt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.enrollments[enrollment.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	enrollment.Version = expectedVersion + 1
	r.enrollments[enrollment.ID] = cloneEnrollment(*enrollment)
	return nil
}

func (r *memEnrollmentRepo) TouchLastAccessed(ctx context.Context, id string, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.touched++
	if ts.After(e.LastAccessedAt) {
		e.LastAccessedAt = ts
		r.enrollments[id] = e
	}
	return nil
}

// bump simulates a concurrent writer committing first.
func (r *memEnrollmentRepo) bump(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.enrollments[id]
	e.Version++
	r.enrollments[id] = e
}

func (r *memEnrollmentRepo) get(id string) models.Enrollment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneEnrollment(r.enrollments[id])
}

func (r *memEnrollmentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.enrollments)
}

func cloneEnrollment(e models.Enrollment) models.Enrollment {
	if e.CompletedLectures != nil {
		e.CompletedLectures = append(models.CompletedLectures{}, e.CompletedLectures...)
	}
	return e
}

type auditRecorder struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditRecorder) actions() []string {
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type memCacheRepo struct {
	mu          sync.Mutex
	values      map[string][]byte
	invalidated []string
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{values: map[string][]byte{}}
}

func (c *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	return nil
}

func (c *memCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.values {
		if strings.HasPrefix(key, prefix) {
			delete(c.values, key)
		}
	}
	return nil
}

// twoLectureCourse has one section, one chapter and two lectures.
func twoLectureCourse() models.Course {
	return models.Course{
		ID:    "course-1",
		Title: "Go Basics",
		Sections: models.Sections{{
			ID:    "sec-1",
			Title: "Intro",
			Chapters: []models.Chapter{{
				ID:    "ch-1",
				Title: "Start",
				Lectures: []models.Lecture{
					{ID: "lec-1", Title: "Hello"},
					{ID: "lec-2", Title: "World"},
				},
			}},
		}},
	}
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }
