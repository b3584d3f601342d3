package models

import "time"

// StatsTimeframe selects the window and bucket size of the admin dashboard.
type StatsTimeframe string

const (
	Timeframe30Days  StatsTimeframe = "30d"
	Timeframe3Months StatsTimeframe = "3m"
	Timeframe6Months StatsTimeframe = "6m"
	Timeframe1Year   StatsTimeframe = "1y"

	DefaultTimeframe = Timeframe30Days
)

// Bucket units of the chart series.
const (
	BucketDay   = "day"
	BucketWeek  = "week"
	BucketMonth = "month"
)

const statsSeriesDayFmt = "2006-01-02"

// Window returns the lookback duration and bucket unit for tf.
func (tf StatsTimeframe) Window() (lookback time.Duration, bucket string, ok bool) {
	day := 24 * time.Hour
	switch tf {
	case Timeframe30Days:
		return 30 * day, BucketDay, true
	case Timeframe3Months:
		return 91 * day, BucketWeek, true
	case Timeframe6Months:
		return 182 * day, BucketWeek, true
	case Timeframe1Year:
		return 365 * day, BucketMonth, true
	}
	return 0, "", false
}

// StatsCounters are the headline numbers of the dashboard.
type StatsCounters struct {
	TotalUsers           int     `db:"total_users" json:"totalUsers"`
	TotalStudents        int     `db:"total_students" json:"totalStudents"`
	TotalCourses         int     `db:"total_courses" json:"totalCourses"`
	TotalEnrollments     int     `db:"total_enrollments" json:"totalEnrollments"`
	ActiveEnrollments    int     `db:"active_enrollments" json:"activeEnrollments"`
	CompletedEnrollments int     `db:"completed_enrollments" json:"completedEnrollments"`
	AverageProgress      float64 `db:"average_progress" json:"averageProgress"`
	TotalAnnouncements   int     `db:"total_announcements" json:"totalAnnouncements"`
}

// StatsBucketCount is one aggregated row returned by the repository.
type StatsBucketCount struct {
	Bucket time.Time `db:"bucket"`
	Count  int       `db:"count"`
}

// StatsPoint is one zero-filled chart point.
type StatsPoint struct {
	Date        string `json:"date"`
	Enrollments int    `json:"enrollments"`
	Completions int    `json:"completions"`
	Signups     int    `json:"signups"`
}

// AdminStats is the payload of the admin stats endpoint.
type AdminStats struct {
	Timeframe   StatsTimeframe `json:"timeframe"`
	Bucket      string         `json:"bucket"`
	Counters    StatsCounters  `json:"counters"`
	Series      []StatsPoint   `json:"series"`
	GeneratedAt time.Time      `json:"generatedAt"`
	IsMock      bool           `json:"isMock,omitempty"`
}

// BucketStart truncates t (UTC) to the start of its bucket. Weeks start on Monday.
func BucketStart(t time.Time, bucket string) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch bucket {
	case BucketWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case BucketMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// NextBucket advances a bucket start by one bucket.
func NextBucket(t time.Time, bucket string) time.Time {
	switch bucket {
	case BucketWeek:
		return t.AddDate(0, 0, 7)
	case BucketMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// BucketLabel formats a bucket start for the chart.
func BucketLabel(t time.Time) string {
	return t.UTC().Format(statsSeriesDayFmt)
}
