// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package database implements the DuckDB-backed storage gateway for GPS
// fixes and system stats snapshots. All methods are safe for concurrent
// use; DuckDB serializes writes internally.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New creates a new database connection and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure parent directory exists for the database file.
	// 0750 permissions per gosec G301.
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	// Disable auto-install/auto-load of extensions to prevent hangs in
	// restricted network environments. The fix schema needs none.
	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory, preserveOrder)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn: conn,
		cfg:  cfg,
	}

	db.configureConnectionPool()

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Str("max_memory", cfg.MaxMemory).
		Msg("Database initialized")

	return db, nil
}

// configureConnectionPool applies pool limits tuned for a single-process
// embedded database: NumCPU writers, short idle cleanup.
func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// initialize creates tables and flushes the WAL so a crash before the
// first checkpoint cannot leave schema statements pending replay.
func (db *DB) initialize() error {
	if err := db.createTables(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after schema initialization")
	}

	return nil
}

// createTables creates the fix and snapshot tables and their indexes.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS gps_fixes (
			id VARCHAR PRIMARY KEY,
			device_id VARCHAR NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			altitude DOUBLE,
			speed DOUBLE,
			heading DOUBLE,
			accuracy DOUBLE,
			timestamp TIMESTAMP NOT NULL,
			additional_data VARCHAR,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gps_fixes_timestamp ON gps_fixes(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_gps_fixes_device_id ON gps_fixes(device_id)`,
		`CREATE TABLE IF NOT EXISTS stats_snapshots (
			timestamp TIMESTAMP NOT NULL,
			total_fixes BIGINT NOT NULL,
			storage_bytes BIGINT NOT NULL,
			storage_limit_bytes BIGINT NOT NULL,
			usage_ratio DOUBLE NOT NULL,
			capacity_status VARCHAR NOT NULL,
			connected_clients INTEGER NOT NULL,
			requests_last_minute BIGINT NOT NULL,
			avg_requests_per_minute DOUBLE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stats_snapshots_timestamp ON stats_snapshots(timestamp)`,
	}

	for _, q := range queries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// Close checkpoints the WAL and closes the connection. The checkpoint is
// best-effort; a failure only risks a slower WAL replay on next startup.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	cancel()

	return db.conn.Close()
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Checkpoint forces a WAL checkpoint.
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// EstimateStorageBytes returns the on-disk size of the database file plus
// its WAL. This is what counts against the capacity budget.
func (db *DB) EstimateStorageBytes() (int64, error) {
	info, err := os.Stat(db.cfg.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat database file: %w", err)
	}
	total := info.Size()

	// WAL may not exist between checkpoints
	if walInfo, err := os.Stat(db.cfg.Path + ".wal"); err == nil {
		total += walInfo.Size()
	}

	return total, nil
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.cfg.Path
}

// ensureContext creates a context with a 30-second timeout if the caller
// provided none.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 30*time.Second)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, 30*time.Second)
	}

	return ctx, func() {}
}

// closeQuietly closes a resource and explicitly ignores any error.
// Use in error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// closeWithLog closes a resource and logs any error. Use where errors
// should be acknowledged but not fail the operation.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}
