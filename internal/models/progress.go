package models

import (
	"fmt"
	"math"
	"time"
)

// ProgressSnapshot is the derived completion state of one enrollment.
type ProgressSnapshot struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// ComputeProgress returns round(100*completed/total), or 0 for an empty course.
func ComputeProgress(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// KeepKnown returns the members of ids found in known, once each, in the order
// of ids.
func KeepKnown(ids, known []string) []string {
	open := make(map[string]bool, len(known))
	for _, id := range known {
		open[id] = true
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if open[id] {
			out = append(out, id)
			open[id] = false
		}
	}
	return out
}

// StatusFor derives the enrollment status after a progress change.
func StatusFor(previous EnrollmentStatus, percentage int) EnrollmentStatus {
	switch {
	case percentage >= 100:
		return EnrollmentStatusCompleted
	case previous == EnrollmentStatusCompleted:
		return EnrollmentStatusActive
	case previous == "":
		return EnrollmentStatusActive
	default:
		return previous
	}
}

// TimeAgo renders the distance between then and now in coarse units.
func TimeAgo(then, now time.Time) string {
	d := now.Sub(then)
	if d < time.Minute {
		return "just now"
	}
	day := 24 * time.Hour
	switch {
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < day:
		return plural(int(d/time.Hour), "hour")
	case d < 7*day:
		return plural(int(d/day), "day")
	case d < 30*day:
		return plural(int(d/(7*day)), "week")
	case d < 365*day:
		return plural(int(d/(30*day)), "month")
	default:
		return plural(int(d/(365*day)), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
