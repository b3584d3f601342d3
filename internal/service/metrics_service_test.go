package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurukul-lms/gurukul-api/pkg/jobs"
)

func TestMetricsSnapshotAggregates(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/courses", 200, 10*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/api/courses", 200, 30*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordLectureToggle(true)
	m.RecordEnrollmentCreated()
	m.RecordNotificationsMaterialized(3)
	m.RecordNotificationsMaterialized(0)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 20.0, snap.AverageRequestDurationMs, 0.01)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(1), snap.LectureToggles)
	assert.Equal(t, uint64(1), snap.EnrollmentsCreated)
	assert.Equal(t, uint64(3), snap.NotificationsMaterialized)
}

func TestMetricsInFlightAndHitRatioGauge(t *testing.T) {
	m := NewMetricsService()
	done := m.RequestStarted()
	assert.Equal(t, int64(1), m.Snapshot().InFlightRequests)
	done()
	assert.Zero(t, m.Snapshot().InFlightRequests)

	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `gurukul_cache_lookups_total{result="hit"} 2`)
	assert.Contains(t, rec.Body.String(), "gurukul_cache_hit_ratio 0.6666")
}

func TestMetricsHandlerExposesDomainCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordLectureToggle(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `gurukul_lecture_toggles_total{completed="false"} 1`))
}

func TestMetricsJobRunsAndQueueDepth(t *testing.T) {
	m := NewMetricsService()
	m.ObserveJob(jobs.Job{Type: "enrollments"}, nil, 200*time.Millisecond)
	m.ObserveJob(jobs.Job{Type: "enrollments"}, errors.New("disk full"), time.Second)
	m.TrackQueue("exports", func() int { return 4 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `gurukul_jobs_run_duration_seconds_count{outcome="ok",type="enrollments"} 1`)
	assert.Contains(t, body, `gurukul_jobs_run_duration_seconds_count{outcome="error",type="enrollments"} 1`)
	assert.Contains(t, body, `gurukul_jobs_queue_depth{queue="exports"} 4`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordLectureToggle(true)
	m.ObserveDBQuery("x", time.Millisecond)
	m.RequestStarted()()
	m.ObserveJob(jobs.Job{}, nil, time.Second)
	m.TrackQueue("q", func() int { return 1 })
	assert.False(t, m.Snapshot().GeneratedAt.IsZero())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
