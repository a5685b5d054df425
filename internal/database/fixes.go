// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

// InsertFix persists a validated fix. The fix ID and CreatedAt are
// assigned here when unset. Uses a UUID primary key so concurrent inserts
// cannot conflict on the same row.
func (db *DB) InsertFix(ctx context.Context, fix *models.Fix) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if fix.ID == "" {
		fix.ID = uuid.NewString()
	}
	if fix.CreatedAt.IsZero() {
		fix.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `INSERT INTO gps_fixes (
		id, device_id, latitude, longitude, altitude, speed, heading,
		accuracy, timestamp, additional_data, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fix.ID, fix.DeviceID, fix.Latitude, fix.Longitude,
		fix.Altitude, fix.Speed, fix.Heading, fix.Accuracy,
		fix.Timestamp, nullIfEmpty(fix.AdditionalData), fix.CreatedAt,
	)
	metrics.RecordDBQuery("insert_fix", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert fix: %w", err)
	}

	return nil
}

// QueryFixes returns fixes matching the query, newest first.
func (db *DB) QueryFixes(ctx context.Context, q models.FixQuery) ([]models.Fix, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var sb strings.Builder
	sb.WriteString(`SELECT id, device_id, latitude, longitude, altitude, speed,
		heading, accuracy, timestamp, additional_data, created_at
		FROM gps_fixes`)

	where, args := buildFixFilter(q)
	sb.WriteString(where)
	sb.WriteString(" ORDER BY timestamp DESC, created_at DESC LIMIT ? OFFSET ?")
	args = append(args, q.Limit, q.Offset)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	metrics.RecordDBQuery("query_fixes", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query fixes: %w", err)
	}
	defer closeWithLog(rows, "fix query rows")

	return scanFixes(rows)
}

// CountFixes returns the number of stored fixes, optionally filtered by
// device.
func (db *DB) CountFixes(ctx context.Context, deviceID string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := "SELECT COUNT(*) FROM gps_fixes"
	var args []interface{}
	if deviceID != "" {
		query += " WHERE device_id = ?"
		args = append(args, deviceID)
	}

	var count int64
	start := time.Now()
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count)
	metrics.RecordDBQuery("count_fixes", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count fixes: %w", err)
	}

	return count, nil
}

// OldestFixes returns up to n fixes ordered oldest first.
func (db *DB) OldestFixes(ctx context.Context, n int) ([]models.Fix, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT id, device_id, latitude,
		longitude, altitude, speed, heading, accuracy, timestamp,
		additional_data, created_at
		FROM gps_fixes ORDER BY timestamp ASC, created_at ASC LIMIT ?`, n)
	metrics.RecordDBQuery("oldest_fixes", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query oldest fixes: %w", err)
	}
	defer closeWithLog(rows, "oldest fix rows")

	return scanFixes(rows)
}

// AllFixesAscending streams every stored fix ordered by event time. Used
// by the backup exporter.
func (db *DB) AllFixesAscending(ctx context.Context) ([]models.Fix, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT id, device_id, latitude,
		longitude, altitude, speed, heading, accuracy, timestamp,
		additional_data, created_at
		FROM gps_fixes ORDER BY timestamp ASC, created_at ASC`)
	metrics.RecordDBQuery("all_fixes", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query all fixes: %w", err)
	}
	defer closeWithLog(rows, "all fix rows")

	return scanFixes(rows)
}

// DeleteOldestPercent deletes floor(count*percent/100) of the oldest fixes
// by event time and returns the number deleted. The victim set is selected
// as an id snapshot first so fixes inserted concurrently cannot be caught
// by the delete.
func (db *DB) DeleteOldestPercent(ctx context.Context, percent int) (int64, error) {
	if percent <= 0 {
		return 0, nil
	}
	if percent > 100 {
		percent = 100
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	total, err := db.CountFixes(ctx, "")
	if err != nil {
		return 0, err
	}

	n := total * int64(percent) / 100
	if n == 0 {
		return 0, nil
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id FROM gps_fixes ORDER BY timestamp ASC, created_at ASC LIMIT ?", n)
	if err != nil {
		metrics.RecordDBQuery("delete_oldest", time.Since(start), err)
		return 0, fmt.Errorf("failed to select purge victims: %w", err)
	}

	ids := make([]interface{}, 0, n)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			closeQuietly(rows)
			return 0, fmt.Errorf("failed to scan purge victim id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		closeQuietly(rows)
		return 0, fmt.Errorf("purge victim iteration failed: %w", err)
	}
	closeWithLog(rows, "purge victim rows")

	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM gps_fixes WHERE id IN ("+placeholders+")", ids...)
	metrics.RecordDBQuery("delete_oldest", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete oldest fixes: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		// DuckDB supports RowsAffected; fall back to the victim count
		deleted = int64(len(ids))
	}

	logging.Info().
		Int64("deleted", deleted).
		Int("percent", percent).
		Int64("total_before", total).
		Msg("Purged oldest fixes")

	return deleted, nil
}

// DeviceStats returns per-device aggregates ordered by most recent fix.
func (db *DB) DeviceStats(ctx context.Context) ([]models.DeviceStats, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT f.device_id,
		       COUNT(*) AS fix_count,
		       MIN(f.timestamp) AS first_fix,
		       MAX(f.timestamp) AS last_fix,
		       arg_max(f.latitude, f.timestamp) AS last_latitude,
		       arg_max(f.longitude, f.timestamp) AS last_longitude
		FROM gps_fixes f
		GROUP BY f.device_id
		ORDER BY last_fix DESC`)
	metrics.RecordDBQuery("device_stats", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query device stats: %w", err)
	}
	defer closeWithLog(rows, "device stats rows")

	var stats []models.DeviceStats
	for rows.Next() {
		var s models.DeviceStats
		if err := rows.Scan(&s.DeviceID, &s.FixCount, &s.FirstFixTime,
			&s.LastFixTime, &s.LastLatitude, &s.LastLongitude); err != nil {
			return nil, fmt.Errorf("failed to scan device stats: %w", err)
		}
		s.FirstFixTime = s.FirstFixTime.UTC()
		s.LastFixTime = s.LastFixTime.UTC()
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("device stats iteration failed: %w", err)
	}

	return stats, nil
}

// InsertSnapshot persists a stats snapshot produced by the governor.
func (db *DB) InsertSnapshot(ctx context.Context, s *models.StatsSnapshot) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `INSERT INTO stats_snapshots (
		timestamp, total_fixes, storage_bytes, storage_limit_bytes,
		usage_ratio, capacity_status, connected_clients,
		requests_last_minute, avg_requests_per_minute
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Timestamp, s.TotalFixes, s.StorageBytes, s.StorageLimitBytes,
		s.UsageRatio, s.CapacityStatus, s.ConnectedClients,
		s.RequestsLastMinute, s.AvgRequestsPerMinute,
	)
	metrics.RecordDBQuery("insert_snapshot", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// LatestSnapshot returns the most recent stats snapshot, or nil when none
// has been recorded yet.
func (db *DB) LatestSnapshot(ctx context.Context) (*models.StatsSnapshot, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var s models.StatsSnapshot
	start := time.Now()
	err := db.conn.QueryRowContext(ctx, `SELECT timestamp, total_fixes,
		storage_bytes, storage_limit_bytes, usage_ratio, capacity_status,
		connected_clients, requests_last_minute, avg_requests_per_minute
		FROM stats_snapshots ORDER BY timestamp DESC LIMIT 1`).
		Scan(&s.Timestamp, &s.TotalFixes, &s.StorageBytes,
			&s.StorageLimitBytes, &s.UsageRatio, &s.CapacityStatus,
			&s.ConnectedClients, &s.RequestsLastMinute, &s.AvgRequestsPerMinute)
	metrics.RecordDBQuery("latest_snapshot", time.Since(start), err)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	s.Timestamp = s.Timestamp.UTC()
	s.StorageMB = models.Round2(float64(s.StorageBytes) / (1024 * 1024))
	return &s, nil
}

// buildFixFilter renders the WHERE clause for a fix query.
func buildFixFilter(q models.FixQuery) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if q.DeviceID != "" {
		clauses = append(clauses, "device_id = ?")
		args = append(args, q.DeviceID)
	}
	if !q.Start.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, q.Start)
	}
	if !q.End.IsZero() {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, q.End)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// scanFixes reads fix rows into models, normalizing times to UTC.
func scanFixes(rows *sql.Rows) ([]models.Fix, error) {
	var fixes []models.Fix
	for rows.Next() {
		var f models.Fix
		var additional sql.NullString
		if err := rows.Scan(&f.ID, &f.DeviceID, &f.Latitude, &f.Longitude,
			&f.Altitude, &f.Speed, &f.Heading, &f.Accuracy,
			&f.Timestamp, &additional, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fix: %w", err)
		}
		f.AdditionalData = additional.String
		f.Timestamp = f.Timestamp.UTC()
		f.CreatedAt = f.CreatedAt.UTC()
		fixes = append(fixes, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fix iteration failed: %w", err)
	}

	return fixes, nil
}

// nullIfEmpty maps an empty string to NULL for nullable VARCHAR columns.
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
