package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/middleware"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/internal/service"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
	"github.com/gurukul-lms/gurukul-api/pkg/export"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      map[string]interface{} `json:"error"`
	Pagination map[string]interface{} `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func asStudent(c *gin.Context) {
	middleware.SetClaims(c, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type lectureServiceFake struct {
	gotIfMatch *int
	result     *dto.ToggleLectureResponse
	err        error
}

func (f *lectureServiceFake) Get(ctx context.Context, userID, lectureID string) (*dto.LectureDetail, error) {
	return &dto.LectureDetail{CourseID: "course-1", Version: 4}, f.err
}

func (f *lectureServiceFake) Toggle(ctx context.Context, userID, lectureID string, req dto.ToggleLectureRequest, ifMatch *int) (*dto.ToggleLectureResponse, error) {
	f.gotIfMatch = ifMatch
	return f.result, f.err
}

func TestLectureToggleSetsETag(t *testing.T) {
	fake := &lectureServiceFake{result: &dto.ToggleLectureResponse{LectureID: "lec-1", Completed: true, Progress: 50, Version: 3}}
	h := NewLectureHandler(fake)

	c, w := newGinContext(http.MethodPatch, "/student/lectures/lec-1", []byte(`{"completed":true}`))
	c.Request.Header.Set("If-Match", `"2"`)
	c.Params = gin.Params{{Key: "lectureId", Value: "lec-1"}}
	asStudent(c)

	h.Toggle(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"3"`, w.Header().Get("ETag"))
	require.NotNil(t, fake.gotIfMatch)
	assert.Equal(t, 2, *fake.gotIfMatch)
}

func TestLectureToggleRequiresCompletedFlag(t *testing.T) {
	h := NewLectureHandler(&lectureServiceFake{})
	c, w := newGinContext(http.MethodPatch, "/student/lectures/lec-1", []byte(`{}`))
	asStudent(c)

	h.Toggle(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLectureTogglePreconditionFailed(t *testing.T) {
	err := appErrors.WithDetails(appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment version changed"), map[string]interface{}{"currentVersion": 5})
	h := NewLectureHandler(&lectureServiceFake{err: err})
	c, w := newGinContext(http.MethodPatch, "/student/lectures/lec-1", []byte(`{"completed":false}`))
	c.Request.Header.Set("If-Match", "1")
	asStudent(c)

	h.Toggle(c)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
	env := decode(t, w)
	assert.Equal(t, float64(5), env.Error["details"].(map[string]interface{})["currentVersion"])
}

func TestLectureToggleRequiresAuth(t *testing.T) {
	h := NewLectureHandler(&lectureServiceFake{})
	c, w := newGinContext(http.MethodPatch, "/student/lectures/lec-1", []byte(`{"completed":true}`))

	h.Toggle(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestParseIfMatch(t *testing.T) {
	cases := map[string]*int{"": nil, "*": nil}
	for raw, want := range cases {
		got, err := parseIfMatch(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, raw := range []string{"7", `"7"`, `W/"7"`} {
		got, err := parseIfMatch(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, 7, *got)
	}
	_, err := parseIfMatch("abc")
	assert.True(t, appErrors.FromError(err).Status == http.StatusBadRequest)
}

type enrollmentServiceFake struct {
	err error
}

func (f enrollmentServiceFake) ListEnrolled(ctx context.Context, userID string) ([]dto.EnrolledCourse, error) {
	return []dto.EnrolledCourse{{EnrollmentID: "enr-1", Progress: 50}}, f.err
}

func (f enrollmentServiceFake) Enroll(ctx context.Context, userID string, req dto.EnrollRequest) (*dto.EnrolledCourse, error) {
	return &dto.EnrolledCourse{EnrollmentID: "enr-2"}, f.err
}

func (f enrollmentServiceFake) UpdateStatus(ctx context.Context, userID, courseID string, req dto.EnrollmentStatusRequest) (*dto.EnrolledCourse, error) {
	return &dto.EnrolledCourse{EnrollmentID: "enr-1", Status: req.Status}, f.err
}

func TestEnrollAlreadyEnrolledCarriesID(t *testing.T) {
	err := appErrors.WithDetails(appErrors.Clone(appErrors.ErrAlreadyEnrolled, "already enrolled in this course"), map[string]interface{}{"enrollmentId": "enr-1"})
	h := NewEnrollmentHandler(enrollmentServiceFake{err: err})
	c, w := newGinContext(http.MethodPost, "/student/courses/enrolled", []byte(`{"courseId":"course-1"}`))
	asStudent(c)

	h.Enroll(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Equal(t, "ALREADY_ENROLLED", env.Error["code"])
	assert.Equal(t, "enr-1", env.Error["details"].(map[string]interface{})["enrollmentId"])
}

func TestEnrollCreated(t *testing.T) {
	h := NewEnrollmentHandler(enrollmentServiceFake{})
	c, w := newGinContext(http.MethodPost, "/student/courses/enrolled", []byte(`{"courseId":"course-1"}`))
	asStudent(c)

	h.Enroll(c)
	assert.Equal(t, http.StatusCreated, w.Code)
}

type notificationServiceFake struct {
	query dto.NotificationQuery
}

func (f *notificationServiceFake) Feed(ctx context.Context, user models.UserInfo, query dto.NotificationQuery) (*dto.NotificationFeed, error) {
	f.query = query
	return &dto.NotificationFeed{
		Items:       []models.Notification{{ID: "n-1", Title: "Welcome"}},
		Pagination:  models.Pagination{Page: 1, PageSize: 5, TotalCount: 1},
		UnreadCount: 3,
	}, nil
}

func (f *notificationServiceFake) MarkRead(ctx context.Context, userID string, req dto.MarkNotificationsRequest) (*dto.MarkNotificationsResponse, error) {
	return &dto.MarkNotificationsResponse{Updated: 1}, nil
}

func (f *notificationServiceFake) Delete(ctx context.Context, userID, id string) error {
	return nil
}

func TestNotificationFeedMeta(t *testing.T) {
	fake := &notificationServiceFake{}
	h := NewNotificationHandler(fake)
	c, w := newGinContext(http.MethodGet, "/student/notifications?limit=5&unread=true&exclude=a,b&exclude=c", nil)
	asStudent(c)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, float64(3), env.Meta["unreadCount"])
	assert.Equal(t, float64(1), env.Pagination["totalCount"])
	assert.Equal(t, 5, fake.query.Limit)
	assert.True(t, fake.query.UnreadOnly)
	assert.Equal(t, []string{"a,b", "c"}, fake.query.Exclude)
}

func TestNotificationDelete(t *testing.T) {
	h := NewNotificationHandler(&notificationServiceFake{})
	c, w := newGinContext(http.MethodDelete, "/student/notifications/n-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "n-1"}}
	asStudent(c)

	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

type statsServiceFake struct {
	hit bool
	err error
}

func (f statsServiceFake) Get(ctx context.Context, timeframe string) (*models.AdminStats, bool, error) {
	return &models.AdminStats{Timeframe: models.StatsTimeframe(timeframe)}, f.hit, f.err
}

func TestStatsCacheHitMeta(t *testing.T) {
	h := NewStatsHandler(statsServiceFake{hit: true})
	c, w := newGinContext(http.MethodGet, "/admin/stats?timeframe=3m", nil)

	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, string(env.Data), `"timeframe":"3m"`)
}

func TestStatsInvalidTimeframe(t *testing.T) {
	h := NewStatsHandler(statsServiceFake{err: appErrors.Clone(appErrors.ErrValidation, "timeframe must be one of 30d, 3m, 6m, 1y")})
	c, w := newGinContext(http.MethodGet, "/admin/stats?timeframe=2w", nil)

	h.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type exportServiceFake struct {
	download *service.ExportDownload
	err      error
}

func (f exportServiceFake) CreateJob(ctx context.Context, req dto.ExportRequest, actorID string, meta models.RequestMeta) (*dto.ExportJobResponse, error) {
	return &dto.ExportJobResponse{ID: "job-1", Status: models.ExportStatusQueued}, f.err
}

func (f exportServiceFake) GetStatus(ctx context.Context, id string) (*dto.ExportStatusResponse, error) {
	return &dto.ExportStatusResponse{ID: id, Status: models.ExportStatusFinished, Progress: 100}, f.err
}

func (f exportServiceFake) ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error) {
	return f.download, f.err
}

func TestExportCreateAccepted(t *testing.T) {
	h := NewExportHandler(exportServiceFake{})
	c, w := newGinContext(http.MethodPost, "/admin/exports", []byte(`{"type":"enrollment_progress","format":"csv"}`))
	middleware.SetClaims(c, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	h.Create(c)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestExportDownloadStreamsFile(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "export*.csv")
	require.NoError(t, err)
	_, _ = file.WriteString("Course,Enrollments\n")
	_, _ = file.Seek(0, 0)

	h := NewExportHandler(exportServiceFake{download: &service.ExportDownload{
		File:      file,
		Filename:  "course_completion.csv",
		Format:    export.FormatCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}})
	c, w := newGinContext(http.MethodGet, "/exports/download/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Course,Enrollments\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "course_completion.csv")
}

func TestExportDownloadForbidden(t *testing.T) {
	h := NewExportHandler(exportServiceFake{err: appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")})
	c, w := newGinContext(http.MethodGet, "/exports/download/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReadyReportsFailingDependency(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return assert.AnError }),
	})
	c, w := newGinContext(http.MethodGet, "/ready", nil)

	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)
}
