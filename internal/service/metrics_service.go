package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/pkg/jobs"
)

const metricsNamespace = "gurukul"

// meanTracker accumulates a count and a total duration for cheap averages.
type meanTracker struct {
	count atomic.Uint64
	total atomic.Uint64 // nanoseconds
}

func (t *meanTracker) add(d time.Duration) {
	t.count.Add(1)
	t.total.Add(uint64(d.Nanoseconds()))
}

func (t *meanTracker) meanMs() float64 {
	n := t.count.Load()
	if n == 0 {
		return 0
	}
	return float64(t.total.Load()) / float64(n) / float64(time.Millisecond)
}

// MetricsService owns a private Prometheus registry under the gurukul
// namespace and mirrors a few totals for GET /admin/metrics. Every method is
// safe on a nil receiver.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
	dbDuration   *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	cacheLatency prometheus.Histogram
	cacheWrites  prometheus.Histogram

	lectureToggles   *prometheus.CounterVec
	enrollments      prometheus.Counter
	materialized     prometheus.Counter
	exportJobs       *prometheus.CounterVec
	jobRuns          *prometheus.HistogramVec
	rateLimited      prometheus.Counter
	versionConflicts prometheus.Counter

	requests      meanTracker
	queries       meanTracker
	inFlight      atomic.Int64
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	toggles       atomic.Uint64
	enrolled      atomic.Uint64
	materializedN atomic.Uint64
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	m := &MetricsService{registry: reg}

	m.httpDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request latency by route template and status.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "route", "status"})
	m.httpInFlight = f.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: "http", Name: "requests_in_flight",
		Help: "Requests currently being served.",
	})
	m.dbDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "db", Name: "query_duration_seconds",
		Help:    "Latency of labelled queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})
	m.cacheLookups = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "cache", Name: "lookups_total",
		Help: "Cache reads by result.",
	}, []string{"result"})
	m.cacheLatency = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "cache", Name: "read_duration_seconds",
		Help:    "Cache read latency.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})
	m.cacheWrites = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "cache", Name: "write_duration_seconds",
		Help:    "Cache write latency.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: "cache", Name: "hit_ratio",
		Help: "Hits over lookups since start.",
	}, m.cacheHitRatio)

	m.lectureToggles = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "lecture_toggles_total",
		Help: "Lecture completion toggles by requested state.",
	}, []string{"completed"})
	m.enrollments = f.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "enrollments_created_total",
		Help: "Enrollments created.",
	})
	m.materialized = f.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "notifications_materialized_total",
		Help: "Announcement notifications materialized on read.",
	})
	m.exportJobs = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "export_jobs_total",
		Help: "Export jobs by terminal status.",
	}, []string{"status"})
	m.jobRuns = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "jobs", Name: "run_duration_seconds",
		Help:    "Background job runs by type and outcome.",
		Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300},
	}, []string{"type", "outcome"})
	m.rateLimited = f.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "rate_limited_requests_total",
		Help: "Requests rejected by the rate limiter.",
	})
	m.versionConflicts = f.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "enrollment_version_conflicts_total",
		Help: "Lost optimistic writes on enrollments.",
	})

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	return m
}

// Handler serves the scrape endpoint; without a service it answers 503.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the registry for extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RequestStarted marks a request in flight; call the returned func when done.
func (m *MetricsService) RequestStarted() func() {
	if m == nil {
		return func() {}
	}
	m.httpInFlight.Inc()
	m.inFlight.Add(1)
	return func() {
		m.httpInFlight.Dec()
		m.inFlight.Add(-1)
	}
}

// ObserveHTTPRequest records one served request against its route template.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
	m.requests.add(duration)
}

// RecordCacheOperation records a cache read.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *MetricsService) cacheHitRatio() float64 {
	hits := m.cacheHits.Load()
	if total := hits + m.cacheMisses.Load(); total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}

// ObserveCacheWrite records a cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrites.Observe(duration.Seconds())
}

// ObserveDBQuery records a labelled query.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.queries.add(duration)
}

// RecordLectureToggle counts a completion toggle.
func (m *MetricsService) RecordLectureToggle(completed bool) {
	if m == nil {
		return
	}
	m.lectureToggles.WithLabelValues(strconv.FormatBool(completed)).Inc()
	m.toggles.Add(1)
}

// RecordEnrollmentCreated counts a new enrollment.
func (m *MetricsService) RecordEnrollmentCreated() {
	if m == nil {
		return
	}
	m.enrollments.Inc()
	m.enrolled.Add(1)
}

// RecordNotificationsMaterialized adds n materialized notifications.
func (m *MetricsService) RecordNotificationsMaterialized(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.materialized.Add(float64(n))
	m.materializedN.Add(uint64(n))
}

// RecordExportJob counts an export job reaching a terminal status.
func (m *MetricsService) RecordExportJob(status models.ExportStatus) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(string(status)).Inc()
}

// ObserveJob records one background job run. Its signature matches
// jobs.QueueConfig.Observe.
func (m *MetricsService) ObserveJob(job jobs.Job, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job.Type, outcome).Observe(took.Seconds())
}

// TrackQueue exports the backlog of a named queue as a gauge.
func (m *MetricsService) TrackQueue(name string, depth func() int) {
	if m == nil || depth == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "jobs",
		Name:        "queue_depth",
		Help:        "Jobs waiting for a worker.",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 { return float64(depth()) }))
}

// RecordRateLimited counts a rejected request.
func (m *MetricsService) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// RecordVersionConflict counts a lost optimistic write.
func (m *MetricsService) RecordVersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

// Snapshot summarises the process for the admin endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	snap := models.SystemMetrics{Goroutines: runtime.NumGoroutine(), GeneratedAt: time.Now().UTC()}
	if m == nil {
		return snap
	}
	snap.CacheHits = m.cacheHits.Load()
	snap.CacheMisses = m.cacheMisses.Load()
	snap.CacheHitRatio = m.cacheHitRatio()
	snap.RequestsTotal = m.requests.count.Load()
	snap.AverageRequestDurationMs = m.requests.meanMs()
	snap.InFlightRequests = m.inFlight.Load()
	snap.DBQueryCount = m.queries.count.Load()
	snap.AverageDBQueryDurationMs = m.queries.meanMs()
	snap.LectureToggles = m.toggles.Load()
	snap.EnrollmentsCreated = m.enrolled.Load()
	snap.NotificationsMaterialized = m.materializedN.Load()
	return snap
}
