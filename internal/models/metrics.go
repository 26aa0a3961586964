package models

import "time"

// SystemMetrics is a lightweight aggregate snapshot exposed through the API
// alongside the raw Prometheus endpoint.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	SubmissionsTotal         uint64    `json:"submissions_total"`
	RendersTotal             uint64    `json:"renders_total"`
	NotificationsTotal       uint64    `json:"notifications_total"`
	ExportsTotal             uint64    `json:"exports_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
