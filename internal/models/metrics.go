package models

import "time"

// SystemMetrics is the instrumentation snapshot served to admins.
type SystemMetrics struct {
	CacheHitRatio             float64   `json:"cacheHitRatio"`
	CacheHits                 uint64    `json:"cacheHits"`
	CacheMisses               uint64    `json:"cacheMisses"`
	RequestsTotal             uint64    `json:"requestsTotal"`
	AverageRequestDurationMs  float64   `json:"averageRequestDurationMs"`
	InFlightRequests          int64     `json:"inFlightRequests"`
	DBQueryCount              uint64    `json:"dbQueryCount"`
	AverageDBQueryDurationMs  float64   `json:"averageDbQueryDurationMs"`
	LectureToggles            uint64    `json:"lectureToggles"`
	EnrollmentsCreated        uint64    `json:"enrollmentsCreated"`
	NotificationsMaterialized uint64    `json:"notificationsMaterialized"`
	Goroutines                int       `json:"goroutines"`
	GeneratedAt               time.Time `json:"generatedAt"`
}
