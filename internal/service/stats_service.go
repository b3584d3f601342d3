package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/internal/repository"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

type statsStore interface {
	Counters(ctx context.Context) (models.StatsCounters, error)
	Buckets(ctx context.Context, series string, since time.Time, bucket string) ([]models.StatsBucketCount, error)
}

// StatsConfig governs caching and the sample fallback.
type StatsConfig struct {
	CacheTTL     time.Duration
	MockFallback bool
}

// StatsService assembles the admin dashboard payload.
type StatsService struct {
	repo    statsStore
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	cfg     StatsConfig
	now     func() time.Time
}

// NewStatsService constructs a StatsService.
func NewStatsService(repo statsStore, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg StatsConfig) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		repo:    repo,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// StatsCacheKey returns the cache key of a timeframe.
func StatsCacheKey(tf models.StatsTimeframe) string {
	return "stats:admin:" + string(tf)
}

// Get returns the stats for timeframe and whether they came from cache.
func (s *StatsService) Get(ctx context.Context, timeframe string) (*models.AdminStats, bool, error) {
	tf := models.StatsTimeframe(timeframe)
	if tf == "" {
		tf = models.DefaultTimeframe
	}
	lookback, bucket, ok := tf.Window()
	if !ok {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "timeframe must be one of 30d, 3m, 6m, 1y")
	}

	now := s.now()
	stats, hit, err := Remember(ctx, s.cache, StatsCacheKey(tf), s.cfg.CacheTTL, func(ctx context.Context) (*models.AdminStats, error) {
		return s.compute(ctx, tf, bucket, now.Add(-lookback), now)
	})
	if err != nil {
		if s.cfg.MockFallback {
			s.logger.Warn("serving sample admin stats", zap.String("timeframe", string(tf)), zap.Error(err))
			return sampleStats(tf, bucket, now.Add(-lookback), now), false, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stats")
	}
	return stats, hit, nil
}

func (s *StatsService) compute(ctx context.Context, tf models.StatsTimeframe, bucket string, since, now time.Time) (*models.AdminStats, error) {
	start := time.Now()
	counters, err := s.repo.Counters(ctx)
	s.metrics.ObserveDBQuery("stats_counters", time.Since(start))
	if err != nil {
		return nil, err
	}

	from := models.BucketStart(since, bucket)
	series := make(map[string]map[time.Time]int, 3)
	for _, name := range []string{repository.SeriesEnrollments, repository.SeriesCompletions, repository.SeriesSignups} {
		start = time.Now()
		rows, err := s.repo.Buckets(ctx, name, from, bucket)
		s.metrics.ObserveDBQuery("stats_"+name, time.Since(start))
		if err != nil {
			return nil, err
		}
		counts := make(map[time.Time]int, len(rows))
		for _, row := range rows {
			counts[models.BucketStart(row.Bucket, bucket)] += row.Count
		}
		series[name] = counts
	}

	points := fillSeries(from, models.BucketStart(now, bucket), bucket, func(at time.Time, _ int) models.StatsPoint {
		return models.StatsPoint{
			Enrollments: series[repository.SeriesEnrollments][at],
			Completions: series[repository.SeriesCompletions][at],
			Signups:     series[repository.SeriesSignups][at],
		}
	})
	return &models.AdminStats{
		Timeframe:   tf,
		Bucket:      bucket,
		Counters:    counters,
		Series:      points,
		GeneratedAt: now,
	}, nil
}

// fillSeries emits one point per bucket from first to last inclusive.
func fillSeries(first, last time.Time, bucket string, point func(at time.Time, i int) models.StatsPoint) []models.StatsPoint {
	var points []models.StatsPoint
	for at, i := first, 0; !at.After(last); at, i = models.NextBucket(at, bucket), i+1 {
		p := point(at, i)
		p.Date = models.BucketLabel(at)
		points = append(points, p)
	}
	return points
}

// sampleStats is a deterministic payload for dashboards without a database.
func sampleStats(tf models.StatsTimeframe, bucket string, since, now time.Time) *models.AdminStats {
	points := fillSeries(models.BucketStart(since, bucket), models.BucketStart(now, bucket), bucket, func(_ time.Time, i int) models.StatsPoint {
		return models.StatsPoint{
			Enrollments: 10 + (i*7)%13,
			Completions: 3 + (i*5)%7,
			Signups:     5 + (i*3)%11,
		}
	})
	return &models.AdminStats{
		Timeframe: tf,
		Bucket:    bucket,
		Counters: models.StatsCounters{
			TotalUsers:           1250,
			TotalStudents:        1180,
			TotalCourses:         24,
			TotalEnrollments:     3420,
			ActiveEnrollments:    2310,
			CompletedEnrollments: 870,
			AverageProgress:      46.5,
			TotalAnnouncements:   38,
		},
		Series:      points,
		GeneratedAt: now,
		IsMock:      true,
	}
}
