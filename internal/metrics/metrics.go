// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline, storage layer, WebSocket hub, capacity governor and HTTP API.
// Metrics are exposed at /metrics in Prometheus text format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion outcomes used as label values on IngestTotal.
const (
	OutcomeAccepted     = "accepted"
	OutcomeRejected     = "rejected"
	OutcomeRateLimited  = "rate_limited"
	OutcomeStorageError = "storage_error"
)

var (
	// Ingestion metrics
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_ingest_total",
			Help: "Total number of fix submissions by outcome",
		},
		[]string{"outcome"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waypost_ingest_duration_seconds",
			Help:    "End-to-end duration of fix ingestion in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waypost_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation"},
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waypost_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waypost_api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waypost_rate_limit_rejections_total",
			Help: "Total number of fixes rejected by per-device rate limiting",
		},
	)

	// WebSocket metrics
	WSConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waypost_websocket_connected_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	WSBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_websocket_broadcasts_total",
			Help: "Total number of broadcast messages by type",
		},
		[]string{"type"},
	)

	WSDroppedClients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waypost_websocket_dropped_clients_total",
			Help: "Total number of clients dropped for slow consumption",
		},
	)

	// Capacity governor metrics
	GovernorTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_governor_ticks_total",
			Help: "Total number of capacity checks by result",
		},
		[]string{"result"}, // "ok", "warning", "critical", "error"
	)

	GovernorPurgedFixes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_governor_purged_fixes_total",
			Help: "Total number of fixes deleted by capacity purges",
		},
		[]string{"severity"},
	)

	StorageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waypost_storage_bytes",
			Help: "Current database file size in bytes",
		},
	)

	StorageUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waypost_storage_usage_ratio",
			Help: "Database size as a fraction of the configured limit",
		},
	)

	// Backup metrics
	BackupOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_backup_operations_total",
			Help: "Total number of backup operations by format and result",
		},
		[]string{"format", "result"},
	)

	BackupFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waypost_backup_files",
			Help: "Current number of unexpired backup files",
		},
	)
)

// RecordIngest records one fix submission outcome with its duration.
func RecordIngest(outcome string, duration time.Duration) {
	IngestTotal.WithLabelValues(outcome).Inc()
	IngestDuration.Observe(duration.Seconds())
}

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBroadcast records one hub broadcast by message type.
func RecordBroadcast(messageType string) {
	WSBroadcastsTotal.WithLabelValues(messageType).Inc()
}

// RecordPurge records a capacity purge.
func RecordPurge(severity string, deleted int64) {
	GovernorPurgedFixes.WithLabelValues(severity).Add(float64(deleted))
}

// SetStorageUsage updates the storage gauges.
func SetStorageUsage(bytes int64, ratio float64) {
	StorageBytes.Set(float64(bytes))
	StorageUsageRatio.Set(ratio)
}

// RecordBackup records a backup operation result.
func RecordBackup(format string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	BackupOperations.WithLabelValues(format, result).Inc()
}
