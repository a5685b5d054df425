// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package config defines the Waypost configuration model and its layered
// loader (defaults, optional YAML file, environment variables).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Waypost server.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Validation ValidationConfig `koanf:"validation"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Capacity   CapacityConfig   `koanf:"capacity"`
	Backup     BackupConfig     `koanf:"backup"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host" validate:"required"`
	Port        int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout     time.Duration `koanf:"timeout" validate:"min=1s"`
	Environment string        `koanf:"environment" validate:"oneof=development production"`
	CORSOrigins []string      `koanf:"cors_origins"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`

	// MaxMemory is the DuckDB memory cap, e.g. "512MB".
	MaxMemory string `koanf:"max_memory"`

	// Threads limits DuckDB worker threads. 0 means runtime.NumCPU().
	Threads int `koanf:"threads" validate:"min=0"`

	PreserveInsertionOrder bool `koanf:"preserve_insertion_order"`
}

// ValidationConfig bounds accepted GPS fixes.
type ValidationConfig struct {
	// MaxSpeedKMH is the speed ceiling in km/h. The default 720 admits
	// commercial aircraft but rejects obviously corrupt readings.
	MaxSpeedKMH float64 `koanf:"max_speed_kmh" validate:"gt=0"`

	// StalenessWindow rejects fixes with timestamps older than this.
	StalenessWindow time.Duration `koanf:"staleness_window" validate:"min=1m"`

	// MaxFutureSkew rejects fixes with timestamps further in the future.
	MaxFutureSkew time.Duration `koanf:"max_future_skew" validate:"min=1s"`

	// MaxPayloadChars caps the additional_data JSON payload length.
	MaxPayloadChars int `koanf:"max_payload_chars" validate:"min=0"`
}

// RateLimitConfig controls per-device admission.
type RateLimitConfig struct {
	// Interval is the minimum spacing between accepted fixes per device.
	Interval time.Duration `koanf:"interval" validate:"min=1ms"`

	// MaxKeys bounds the limiter map; oldest-idle entries are evicted.
	MaxKeys int `koanf:"max_keys" validate:"min=1"`

	// InactiveTTL is how long an idle device keeps its limiter entry.
	InactiveTTL time.Duration `koanf:"inactive_ttl" validate:"min=1s"`
}

// CapacityConfig governs the storage budget and purge behavior.
type CapacityConfig struct {
	// StorageLimitBytes is the hard budget for the database file.
	StorageLimitBytes int64 `koanf:"storage_limit_bytes" validate:"min=1048576"`

	// CheckInterval is the governor tick period.
	CheckInterval time.Duration `koanf:"check_interval" validate:"min=1s"`

	// RetryInterval is used after a failed tick.
	RetryInterval time.Duration `koanf:"retry_interval" validate:"min=1s"`

	// WarningPurgePercent of oldest fixes is deleted at the warning
	// threshold (after a JSON backup).
	WarningPurgePercent int `koanf:"warning_purge_percent" validate:"min=1,max=100"`

	// CriticalPurgePercent of oldest fixes is deleted at the critical
	// threshold (no backup, space is already scarce).
	CriticalPurgePercent int `koanf:"critical_purge_percent" validate:"min=1,max=100"`
}

// BackupConfig controls snapshot exports.
type BackupConfig struct {
	Dir string `koanf:"dir" validate:"required"`

	// TTL is how long a backup file remains downloadable.
	TTL time.Duration `koanf:"ttl" validate:"min=1m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// configValidator validates the loaded config against struct tags.
var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for structural and semantic errors.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Capacity.RetryInterval > c.Capacity.CheckInterval {
		return fmt.Errorf("capacity.retry_interval (%s) must not exceed capacity.check_interval (%s)",
			c.Capacity.RetryInterval, c.Capacity.CheckInterval)
	}
	if c.Validation.MaxFutureSkew >= c.Validation.StalenessWindow {
		return fmt.Errorf("validation.max_future_skew (%s) must be smaller than validation.staleness_window (%s)",
			c.Validation.MaxFutureSkew, c.Validation.StalenessWindow)
	}
	return nil
}
