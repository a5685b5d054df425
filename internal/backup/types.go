// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package backup exports stored GPS fixes to JSON or CSV archives with a
// fixed time-to-live.
//
// Archives are written to a single backup directory with a timestamped
// filename and expire 24 hours after creation (configurable). Expiry is
// enforced two ways: a per-file timer deletes the archive when its TTL
// elapses, and the CleanupExpired sweep catches anything the timers
// missed, including files whose TTL elapsed while the process was down.
// The sweep is the source of truth.
//
// Metadata for all live archives is stored in metadata.json alongside the
// backup files and reloaded on startup.
package backup

import (
	"errors"
	"time"

	"github.com/tomtom215/waypost/internal/models"
)

// Format identifies the export encoding of an archive.
type Format string

const (
	// FormatJSON exports fixes as a JSON document with embedded metadata
	FormatJSON Format = "json"

	// FormatCSV exports fixes as comma-separated values with a header row
	FormatCSV Format = "csv"
)

// Sentinel errors returned by the exporter. Handlers map these onto
// HTTP status codes.
var (
	ErrInvalidFormat   = errors.New("backup format must be json or csv")
	ErrInvalidFilename = errors.New("invalid backup filename")
	ErrBackupNotFound  = errors.New("backup file not found")
	ErrBackupExpired   = errors.New("backup file has expired")
)

// File describes a single backup archive on disk.
type File struct {
	// Filename within the backup directory (no path component)
	Filename string `json:"filename"`

	// Export format of the archive
	Format Format `json:"format"`

	// When the archive was created
	CreatedAt time.Time `json:"created_at"`

	// When the archive expires and is deleted
	ExpiresAt time.Time `json:"expires_at"`

	// Size of the archive in bytes
	SizeBytes int64 `json:"size_bytes"`

	// Number of fixes in the archive
	RecordCount int64 `json:"record_count"`

	// Expired is computed when listing archives: true once the TTL has
	// elapsed, even if the sweep has not removed the file yet
	Expired bool `json:"expired"`
}

// IsExpired reports whether the file's TTL has elapsed at the given time.
func (f *File) IsExpired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// metadataStore is the on-disk index of live archives.
type metadataStore struct {
	Files []*File `json:"files"`
}

// Archive is the JSON document layout: metadata first, then the data.
type Archive struct {
	Metadata *File        `json:"metadata"`
	Data     []models.Fix `json:"data"`
}
