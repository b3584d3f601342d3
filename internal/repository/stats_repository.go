package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gurukul-lms/gurukul-api/internal/models"
)

// Series names accepted by StatsRepository.Buckets.
const (
	SeriesEnrollments = "enrollments"
	SeriesCompletions = "completions"
	SeriesSignups     = "signups"
)

var seriesSources = map[string]struct{ table, column string }{
	SeriesEnrollments: {"enrollments", "enrolled_at"},
	SeriesCompletions: {"enrollments", "completed_at"},
	SeriesSignups:     {"users", "created_at"},
}

var bucketUnits = map[string]bool{models.BucketDay: true, models.BucketWeek: true, models.BucketMonth: true}

// StatsRepository exposes read-only aggregate queries for the admin dashboard.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository instantiates the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Counters returns the dashboard headline numbers in one round trip.
func (r *StatsRepository) Counters(ctx context.Context) (models.StatsCounters, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM users WHERE active = TRUE) AS total_users,
        (SELECT COUNT(*) FROM users WHERE active = TRUE AND role = 'STUDENT') AS total_students,
        (SELECT COUNT(*) FROM courses) AS total_courses,
        (SELECT COUNT(*) FROM enrollments) AS total_enrollments,
        (SELECT COUNT(*) FROM enrollments WHERE status = 'active') AS active_enrollments,
        (SELECT COUNT(*) FROM enrollments WHERE status = 'completed') AS completed_enrollments,
        (SELECT COALESCE(AVG(progress), 0) FROM enrollments) AS average_progress,
        (SELECT COUNT(*) FROM announcements) AS total_announcements`
	var counters models.StatsCounters
	if err := r.db.GetContext(ctx, &counters, query); err != nil {
		return models.StatsCounters{}, fmt.Errorf("query stats counters: %w", err)
	}
	return counters, nil
}

// Buckets counts rows of series per UTC bucket since the given time. Empty
// buckets are absent from the result.
func (r *StatsRepository) Buckets(ctx context.Context, series string, since time.Time, bucket string) ([]models.StatsBucketCount, error) {
	src, ok := seriesSources[series]
	if !ok {
		return nil, fmt.Errorf("unknown stats series %q", series)
	}
	if !bucketUnits[bucket] {
		return nil, fmt.Errorf("unknown stats bucket %q", bucket)
	}
	query := fmt.Sprintf(`SELECT date_trunc('%s', %s AT TIME ZONE 'UTC') AS bucket, COUNT(*) AS count
        FROM %s WHERE %s IS NOT NULL AND %s >= $1
        GROUP BY 1 ORDER BY 1`, bucket, src.column, src.table, src.column, src.column)

	var rows []models.StatsBucketCount
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("query %s buckets: %w", series, err)
	}
	return rows, nil
}
