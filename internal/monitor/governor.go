// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package monitor enforces the storage ceiling. The governor wakes on a
// fixed interval, measures database size against the configured limit and
// reacts in two stages: at the warning threshold it exports a JSON backup
// and purges the oldest fixes, at the critical threshold it purges a
// larger share immediately without waiting for an export. Every tick also
// persists and broadcasts a stats snapshot.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/waypost/internal/backup"
	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

// Store provides the database operations the governor needs.
type Store interface {
	// EstimateStorageBytes returns the on-disk size of the database
	EstimateStorageBytes() (int64, error)
	// CountFixes returns the number of stored fixes, all devices when empty
	CountFixes(ctx context.Context, deviceID string) (int64, error)
	// DeleteOldestPercent purges the oldest percent of fixes
	DeleteOldestPercent(ctx context.Context, percent int) (int64, error)
	// InsertSnapshot persists a stats snapshot
	InsertSnapshot(ctx context.Context, s *models.StatsSnapshot) error
}

// Exporter creates pre-purge backups and sweeps expired ones.
type Exporter interface {
	CreateBackup(ctx context.Context, format backup.Format) (*backup.File, error)
	CleanupExpired() (int, error)
}

// Broadcaster pushes snapshots and alerts to live subscribers.
type Broadcaster interface {
	BroadcastStats(snapshot *models.StatsSnapshot)
	BroadcastAlert(alert *models.Alert)
	GetClientCount() int
}

// Limiter exposes the rate-limiter maintenance hook.
type Limiter interface {
	CleanupInactive() int
}

// RequestTracker exposes the request-rate stats.
type RequestTracker interface {
	LastMinute() int64
	AveragePerMinute() float64
}

// Governor is the periodic capacity enforcement service. It implements
// suture.Service and is restarted by the supervisor if it returns.
type Governor struct {
	cfg      *config.CapacityConfig
	store    Store
	exporter Exporter
	hub      Broadcaster
	gate     Limiter
	tracker  RequestTracker
}

// NewGovernor creates a governor. All collaborators are required.
func NewGovernor(
	cfg *config.CapacityConfig,
	store Store,
	exporter Exporter,
	hub Broadcaster,
	gate Limiter,
	tracker RequestTracker,
) *Governor {
	return &Governor{
		cfg:      cfg,
		store:    store,
		exporter: exporter,
		hub:      hub,
		gate:     gate,
		tracker:  tracker,
	}
}

// Serve runs capacity ticks until the context is canceled. A failed tick
// is retried on the shorter retry interval instead of waiting out the
// full check interval. Ticks never overlap: the next one is not armed
// until the current one finishes.
func (g *Governor) Serve(ctx context.Context) error {
	interval := g.cfg.CheckInterval
	if err := g.tick(ctx); err != nil {
		logging.Error().Err(err).Msg("Capacity check failed")
		interval = g.cfg.RetryInterval
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			next := g.cfg.CheckInterval
			if err := g.tick(ctx); err != nil {
				logging.Error().Err(err).Msg("Capacity check failed")
				next = g.cfg.RetryInterval
			}
			timer.Reset(next)
		}
	}
}

// String names the service in supervisor logs.
func (g *Governor) String() string {
	return "capacity-governor"
}

// tick runs one capacity check: measure, enforce, sweep, snapshot.
func (g *Governor) tick(ctx context.Context) error {
	bytes, err := g.store.EstimateStorageBytes()
	if err != nil {
		metrics.GovernorTicks.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to estimate storage size: %w", err)
	}

	ratio := float64(bytes) / float64(g.cfg.StorageLimitBytes)
	metrics.SetStorageUsage(bytes, ratio)

	result := "ok"
	switch {
	case ratio >= models.CapacityCriticalRatio:
		result = "critical"
		err = g.enforceCritical(ctx, ratio)
	case ratio >= models.CapacityWarningRatio:
		result = "warning"
		err = g.enforceWarning(ctx, ratio)
	}
	if err != nil {
		metrics.GovernorTicks.WithLabelValues("error").Inc()
		return err
	}

	if _, sweepErr := g.exporter.CleanupExpired(); sweepErr != nil {
		logging.Warn().Err(sweepErr).Msg("backup sweep failed")
	}
	g.gate.CleanupInactive()

	snapshot, err := g.BuildSnapshot(ctx)
	if err != nil {
		metrics.GovernorTicks.WithLabelValues("error").Inc()
		return err
	}
	if err := g.store.InsertSnapshot(ctx, snapshot); err != nil {
		logging.Warn().Err(err).Msg("failed to persist stats snapshot")
	}
	g.hub.BroadcastStats(snapshot)

	metrics.GovernorTicks.WithLabelValues(result).Inc()
	return nil
}

// enforceWarning handles usage at or above the warning threshold: export
// a JSON backup of everything, then purge the oldest fixes. An export
// failure does not block the purge, the ceiling matters more than the
// copy.
func (g *Governor) enforceWarning(ctx context.Context, ratio float64) error {
	logging.Warn().
		Float64("usage_ratio", models.Round2(ratio)).
		Int("purge_percent", g.cfg.WarningPurgePercent).
		Msg("Storage usage above warning threshold")

	var backupFile string
	if file, err := g.exporter.CreateBackup(ctx, backup.FormatJSON); err != nil {
		logging.Error().Err(err).Msg("pre-purge backup failed, purging anyway")
	} else {
		backupFile = file.Filename
	}

	deleted, err := g.store.DeleteOldestPercent(ctx, g.cfg.WarningPurgePercent)
	if err != nil {
		return fmt.Errorf("warning purge failed: %w", err)
	}
	metrics.RecordPurge(models.AlertWarning, deleted)

	g.hub.BroadcastAlert(&models.Alert{
		Severity:   models.AlertWarning,
		Message:    fmt.Sprintf("storage at %.0f%% capacity, purged %d oldest fixes after backup", ratio*100, deleted),
		UsageRatio: models.Round2(ratio),
		Deleted:    deleted,
		BackupFile: backupFile,
		Timestamp:  time.Now().UTC(),
	})
	return nil
}

// enforceCritical handles usage at or above the critical threshold: purge
// immediately, no backup. At this level an export would only add disk
// pressure.
func (g *Governor) enforceCritical(ctx context.Context, ratio float64) error {
	logging.Error().
		Float64("usage_ratio", models.Round2(ratio)).
		Int("purge_percent", g.cfg.CriticalPurgePercent).
		Msg("Storage usage above critical threshold")

	deleted, err := g.store.DeleteOldestPercent(ctx, g.cfg.CriticalPurgePercent)
	if err != nil {
		return fmt.Errorf("critical purge failed: %w", err)
	}
	metrics.RecordPurge(models.AlertEmergency, deleted)

	g.hub.BroadcastAlert(&models.Alert{
		Severity:   models.AlertEmergency,
		Message:    fmt.Sprintf("storage at %.0f%% capacity, emergency purge removed %d oldest fixes", ratio*100, deleted),
		UsageRatio: models.Round2(ratio),
		Deleted:    deleted,
		Timestamp:  time.Now().UTC(),
	})
	return nil
}

// BuildSnapshot assembles the current stats snapshot. Also used by the
// stats endpoint when no persisted snapshot exists yet.
func (g *Governor) BuildSnapshot(ctx context.Context) (*models.StatsSnapshot, error) {
	bytes, err := g.store.EstimateStorageBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to estimate storage size: %w", err)
	}

	total, err := g.store.CountFixes(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to count fixes: %w", err)
	}

	ratio := float64(bytes) / float64(g.cfg.StorageLimitBytes)
	return &models.StatsSnapshot{
		Timestamp:            time.Now().UTC(),
		TotalFixes:           total,
		StorageBytes:         bytes,
		StorageMB:            models.Round2(float64(bytes) / (1024 * 1024)),
		StorageLimitBytes:    g.cfg.StorageLimitBytes,
		UsageRatio:           models.Round2(ratio),
		CapacityStatus:       models.CapacityStatusFor(ratio),
		ConnectedClients:     g.hub.GetClientCount(),
		RequestsLastMinute:   g.tracker.LastMinute(),
		AvgRequestsPerMinute: models.Round2(g.tracker.AveragePerMinute()),
	}, nil
}
