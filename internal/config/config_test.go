// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)

	assert.Equal(t, "/data/waypost.duckdb", cfg.Database.Path)
	assert.Equal(t, "512MB", cfg.Database.MaxMemory)
	assert.True(t, cfg.Database.PreserveInsertionOrder)

	assert.InDelta(t, 720.0, cfg.Validation.MaxSpeedKMH, 0.001)
	assert.Equal(t, 7*24*time.Hour, cfg.Validation.StalenessWindow)
	assert.Equal(t, time.Hour, cfg.Validation.MaxFutureSkew)
	assert.Equal(t, 1000, cfg.Validation.MaxPayloadChars)

	assert.Equal(t, time.Second, cfg.RateLimit.Interval)

	assert.Equal(t, int64(100<<20), cfg.Capacity.StorageLimitBytes)
	assert.Equal(t, 5*time.Minute, cfg.Capacity.CheckInterval)
	assert.Equal(t, time.Minute, cfg.Capacity.RetryInterval)
	assert.Equal(t, 25, cfg.Capacity.WarningPurgePercent)
	assert.Equal(t, 50, cfg.Capacity.CriticalPurgePercent)

	assert.Equal(t, 24*time.Hour, cfg.Backup.TTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DUCKDB_PATH", "/tmp/test.duckdb")
	t.Setenv("STORAGE_LIMIT_BYTES", "52428800")
	t.Setenv("MAX_SPEED_KMH", "400")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.duckdb", cfg.Database.Path)
	assert.Equal(t, int64(50<<20), cfg.Capacity.StorageLimitBytes)
	assert.InDelta(t, 400.0, cfg.Validation.MaxSpeedKMH, 0.001)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 7000
capacity:
  warning_purge_percent: 30
backup:
  ttl: 48h
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Capacity.WarningPurgePercent)
	assert.Equal(t, 48*time.Hour, cfg.Backup.TTL)
	// Untouched values keep defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0o600))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"negative speed ceiling", func(c *Config) { c.Validation.MaxSpeedKMH = -1 }},
		{"purge percent over 100", func(c *Config) { c.Capacity.WarningPurgePercent = 150 }},
		{"storage limit below minimum", func(c *Config) { c.Capacity.StorageLimitBytes = 100 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad environment", func(c *Config) { c.Server.Environment = "staging" }},
		{"retry exceeds check interval", func(c *Config) {
			c.Capacity.CheckInterval = time.Minute
			c.Capacity.RetryInterval = 2 * time.Minute
		}},
		{"future skew exceeds staleness window", func(c *Config) {
			c.Validation.StalenessWindow = time.Hour
			c.Validation.MaxFutureSkew = 2 * time.Hour
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvTransformIgnoresUnknownKeys(t *testing.T) {
	t.Parallel()

	assert.Empty(t, envTransformFunc("PATH"))
	assert.Empty(t, envTransformFunc("HOME"))
	assert.Equal(t, "server.port", envTransformFunc("HTTP_PORT"))
	assert.Equal(t, "capacity.storage_limit_bytes", envTransformFunc("STORAGE_LIMIT_BYTES"))
}
