// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"context"
	"time"

	"github.com/tomtom215/waypost/internal/backup"
	"github.com/tomtom215/waypost/internal/ingest"
	"github.com/tomtom215/waypost/internal/models"
	ws "github.com/tomtom215/waypost/internal/websocket"
)

// Version is set at build time.
var Version = "dev"

// Ingestor runs the fix admission pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, sub *models.FixSubmission) (*ingest.Result, error)
}

// FixStore provides the read-side database operations handlers need.
type FixStore interface {
	QueryFixes(ctx context.Context, q models.FixQuery) ([]models.Fix, error)
	CountFixes(ctx context.Context, deviceID string) (int64, error)
	DeviceStats(ctx context.Context) ([]models.DeviceStats, error)
	LatestSnapshot(ctx context.Context) (*models.StatsSnapshot, error)
	Ping(ctx context.Context) error
}

// BackupManager drives archive creation, listing, download and cleanup.
type BackupManager interface {
	CreateBackup(ctx context.Context, format backup.Format) (*backup.File, error)
	ListFiles() []*backup.File
	ResolveDownload(filename string) (string, *backup.File, error)
	CleanupExpired() (int, error)
}

// SnapshotBuilder computes a live stats snapshot on demand.
type SnapshotBuilder interface {
	BuildSnapshot(ctx context.Context) (*models.StatsSnapshot, error)
}

// Handlers holds the dependencies shared by all HTTP handlers.
type Handlers struct {
	ingestor Ingestor
	store    FixStore
	backups  BackupManager
	stats    SnapshotBuilder
	hub      *ws.Hub

	corsOrigins []string
	startTime   time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(
	ingestor Ingestor,
	store FixStore,
	backups BackupManager,
	stats SnapshotBuilder,
	hub *ws.Hub,
	corsOrigins []string,
) *Handlers {
	return &Handlers{
		ingestor:    ingestor,
		store:       store,
		backups:     backups,
		stats:       stats,
		hub:         hub,
		corsOrigins: corsOrigins,
		startTime:   time.Now(),
	}
}
