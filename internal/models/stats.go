// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package models

import "time"

// Capacity status labels reported by GET /api/system/stats and in
// StatsSnapshot broadcasts. Ordered by severity.
const (
	CapacityOK       = "OK"
	CapacityModerate = "MODERATE"
	CapacityWarning  = "WARNING"
	CapacityCritical = "CRITICAL"
)

// Capacity thresholds as a fraction of the configured storage limit.
const (
	CapacityModerateRatio = 0.75
	CapacityWarningRatio  = 0.90
	CapacityCriticalRatio = 0.95
)

// CapacityStatusFor maps a usage ratio (bytes / limit) to a status label.
func CapacityStatusFor(ratio float64) string {
	switch {
	case ratio >= CapacityCriticalRatio:
		return CapacityCritical
	case ratio >= CapacityWarningRatio:
		return CapacityWarning
	case ratio >= CapacityModerateRatio:
		return CapacityModerate
	default:
		return CapacityOK
	}
}

// StatsSnapshot captures system state at a point in time. The capacity
// governor produces one per tick; the latest snapshot backs the system
// stats endpoint and the system_stats broadcast.
type StatsSnapshot struct {
	Timestamp            time.Time `json:"timestamp"`
	TotalFixes           int64     `json:"total_fixes"`
	StorageBytes         int64     `json:"storage_bytes"`
	StorageMB            float64   `json:"storage_mb"`
	StorageLimitBytes    int64     `json:"storage_limit_bytes"`
	UsageRatio           float64   `json:"usage_ratio"`
	CapacityStatus       string    `json:"capacity_status"`
	ConnectedClients     int       `json:"connected_clients"`
	RequestsLastMinute   int64     `json:"requests_last_minute"`
	AvgRequestsPerMinute float64   `json:"avg_requests_per_minute"`
}

// HealthStatus is the GET /health response body.
type HealthStatus struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected"`
	Uptime            float64 `json:"uptime_seconds"`
}

// Alert severities for system_alert broadcasts.
const (
	AlertWarning   = "warning"
	AlertEmergency = "emergency"
)

// Alert is a system_alert payload broadcast when the governor purges data.
type Alert struct {
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	UsageRatio float64   `json:"usage_ratio"`
	Deleted    int64     `json:"deleted_fixes"`
	BackupFile string    `json:"backup_file,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
