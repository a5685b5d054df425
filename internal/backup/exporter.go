// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package backup

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

// filenamePattern matches exactly the filenames this package generates.
// Download requests are validated against it before touching the
// filesystem, so a request can never name a file outside the backup
// directory.
var filenamePattern = regexp.MustCompile(`^gps_backup_\d{8}_\d{6}\.(json|csv)$`)

// csvHeader is written to every CSV archive, including empty ones.
var csvHeader = []string{
	"id", "device_id", "latitude", "longitude",
	"altitude", "speed", "heading", "accuracy",
	"timestamp", "additional_data", "created_at",
}

const metadataFilename = "metadata.json"

// Store provides the fix data for exports.
type Store interface {
	// AllFixesAscending returns every stored fix ordered by event time
	AllFixesAscending(ctx context.Context) ([]models.Fix, error)
}

// Exporter creates, lists, serves and expires backup archives.
type Exporter struct {
	cfg   *config.BackupConfig
	store Store

	metadataFile string
	metadata     *metadataStore
	metadataMu   sync.RWMutex

	// One expiry timer per live archive, keyed by filename
	timers   map[string]*time.Timer
	timersMu sync.Mutex
}

// NewExporter creates an exporter rooted at cfg.Dir. Existing metadata is
// reloaded, expired archives are swept immediately and expiry timers are
// re-armed for the rest.
func NewExporter(cfg *config.BackupConfig, store Store) (*Exporter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backup configuration is required")
	}

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	e := &Exporter{
		cfg:          cfg,
		store:        store,
		metadataFile: filepath.Join(cfg.Dir, metadataFilename),
		timers:       make(map[string]*time.Timer),
	}

	if err := e.loadMetadata(); err != nil {
		e.metadata = &metadataStore{Files: make([]*File, 0)}
	}

	if removed, err := e.CleanupExpired(); err != nil {
		logging.Warn().Err(err).Msg("startup backup sweep failed")
	} else if removed > 0 {
		logging.Info().Int("removed", removed).Msg("Removed expired backups on startup")
	}

	e.metadataMu.RLock()
	for _, f := range e.metadata.Files {
		e.armTimer(f)
	}
	e.metadataMu.RUnlock()

	return e, nil
}

// Close stops all pending expiry timers. Archives on disk are untouched.
func (e *Exporter) Close() {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	for name, timer := range e.timers {
		timer.Stop()
		delete(e.timers, name)
	}
}

// CreateBackup exports all stored fixes to a new archive in the given
// format and schedules its expiry.
func (e *Exporter) CreateBackup(ctx context.Context, format Format) (*File, error) {
	if format != FormatJSON && format != FormatCSV {
		metrics.RecordBackup(string(format), ErrInvalidFormat)
		return nil, ErrInvalidFormat
	}

	fixes, err := e.store.AllFixesAscending(ctx)
	if err != nil {
		metrics.RecordBackup(string(format), err)
		return nil, fmt.Errorf("failed to read fixes for backup: %w", err)
	}

	now := time.Now().UTC()
	file := &File{
		Filename:    fmt.Sprintf("gps_backup_%s.%s", now.Format("20060102_150405"), format),
		Format:      format,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.cfg.TTL),
		RecordCount: int64(len(fixes)),
	}

	path := filepath.Join(e.cfg.Dir, file.Filename)
	switch format {
	case FormatJSON:
		err = writeJSONArchive(path, file, fixes)
	case FormatCSV:
		err = writeCSVArchive(path, fixes)
	}
	if err != nil {
		metrics.RecordBackup(string(format), err)
		return nil, err
	}

	if info, statErr := os.Stat(path); statErr == nil {
		file.SizeBytes = info.Size()
	}

	e.metadataMu.Lock()
	// Filenames have one-second resolution: a second backup within the
	// same second overwrites the archive, so replace its entry too.
	replaced := false
	for i, f := range e.metadata.Files {
		if f.Filename == file.Filename {
			e.metadata.Files[i] = file
			replaced = true
			break
		}
	}
	if !replaced {
		e.metadata.Files = append(e.metadata.Files, file)
	}
	e.saveMetadataLocked()
	count := len(e.metadata.Files)
	e.metadataMu.Unlock()

	e.armTimer(file)

	metrics.RecordBackup(string(format), nil)
	metrics.BackupFiles.Set(float64(count))

	logging.Info().
		Str("filename", file.Filename).
		Str("format", string(format)).
		Int64("records", file.RecordCount).
		Int64("size_bytes", file.SizeBytes).
		Time("expires_at", file.ExpiresAt).
		Msg("Backup created")

	return file, nil
}

// ListFiles returns metadata for all known archives, newest first.
// Archives whose TTL elapsed but which the sweep has not removed yet are
// included with the expired flag set.
func (e *Exporter) ListFiles() []*File {
	e.metadataMu.RLock()
	defer e.metadataMu.RUnlock()

	now := time.Now().UTC()
	files := make([]*File, 0, len(e.metadata.Files))
	for _, f := range e.metadata.Files {
		entry := *f
		entry.Expired = entry.IsExpired(now)
		files = append(files, &entry)
	}

	// Newest first
	for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
		files[i], files[j] = files[j], files[i]
	}
	return files
}

// ResolveDownload validates a requested filename and returns the on-disk
// path with its metadata. The filename must match the generated pattern
// exactly; anything containing path separators or traversal sequences is
// rejected before the filesystem is consulted.
func (e *Exporter) ResolveDownload(filename string) (string, *File, error) {
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return "", nil, ErrInvalidFilename
	}
	if !filenamePattern.MatchString(filename) {
		return "", nil, ErrInvalidFilename
	}

	e.metadataMu.RLock()
	var file *File
	for _, f := range e.metadata.Files {
		if f.Filename == filename {
			file = f
			break
		}
	}
	e.metadataMu.RUnlock()

	if file == nil {
		return "", nil, ErrBackupNotFound
	}
	if file.IsExpired(time.Now().UTC()) {
		return "", nil, ErrBackupExpired
	}

	path := filepath.Join(e.cfg.Dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", nil, ErrBackupNotFound
	}

	return path, file, nil
}

// CleanupExpired removes every archive whose TTL has elapsed and returns
// the number removed. Also called by the capacity governor on each tick.
func (e *Exporter) CleanupExpired() (int, error) {
	now := time.Now().UTC()

	e.metadataMu.Lock()
	var live []*File
	var expired []*File
	for _, f := range e.metadata.Files {
		if f.IsExpired(now) {
			expired = append(expired, f)
		} else {
			live = append(live, f)
		}
	}
	e.metadata.Files = live
	e.saveMetadataLocked()
	count := len(live)
	e.metadataMu.Unlock()

	var firstErr error
	for _, f := range expired {
		e.stopTimer(f.Filename)
		path := filepath.Join(e.cfg.Dir, f.Filename)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
			logging.Warn().Err(err).Str("filename", f.Filename).Msg("failed to remove expired backup")
			continue
		}
		logging.Info().Str("filename", f.Filename).Msg("Expired backup removed")
	}

	metrics.BackupFiles.Set(float64(count))
	return len(expired), firstErr
}

// armTimer schedules deletion of a single archive when its TTL elapses.
func (e *Exporter) armTimer(file *File) {
	remaining := time.Until(file.ExpiresAt)
	if remaining <= 0 {
		return
	}

	filename := file.Filename
	e.timersMu.Lock()
	if old, ok := e.timers[filename]; ok {
		old.Stop()
	}
	e.timers[filename] = time.AfterFunc(remaining, func() {
		e.expireFile(filename)
	})
	e.timersMu.Unlock()
}

// stopTimer cancels the expiry timer for a filename, if armed.
func (e *Exporter) stopTimer(filename string) {
	e.timersMu.Lock()
	if timer, ok := e.timers[filename]; ok {
		timer.Stop()
		delete(e.timers, filename)
	}
	e.timersMu.Unlock()
}

// expireFile removes one archive and its metadata entry. Timer callback.
func (e *Exporter) expireFile(filename string) {
	e.timersMu.Lock()
	delete(e.timers, filename)
	e.timersMu.Unlock()

	e.metadataMu.Lock()
	for i, f := range e.metadata.Files {
		if f.Filename == filename {
			e.metadata.Files = append(e.metadata.Files[:i], e.metadata.Files[i+1:]...)
			break
		}
	}
	e.saveMetadataLocked()
	count := len(e.metadata.Files)
	e.metadataMu.Unlock()

	path := filepath.Join(e.cfg.Dir, filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn().Err(err).Str("filename", filename).Msg("failed to remove expired backup")
	} else {
		logging.Info().Str("filename", filename).Msg("Expired backup removed")
	}

	metrics.BackupFiles.Set(float64(count))
}

// loadMetadata reads the archive index from disk.
func (e *Exporter) loadMetadata() error {
	data, err := os.ReadFile(e.metadataFile)
	if err != nil {
		return err
	}

	var metadata metadataStore
	if err := json.Unmarshal(data, &metadata); err != nil {
		return err
	}
	if metadata.Files == nil {
		metadata.Files = make([]*File, 0)
	}

	e.metadataMu.Lock()
	e.metadata = &metadata
	e.metadataMu.Unlock()
	return nil
}

// saveMetadataLocked writes the archive index. Caller holds metadataMu.
func (e *Exporter) saveMetadataLocked() {
	data, err := json.MarshalIndent(e.metadata, "", "  ")
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal backup metadata")
		return
	}

	if err := os.WriteFile(e.metadataFile, data, 0o600); err != nil {
		logging.Error().Err(err).Msg("failed to write backup metadata")
	}
}

// writeJSONArchive writes the {metadata, data} document.
func writeJSONArchive(path string, file *File, fixes []models.Fix) error {
	if fixes == nil {
		fixes = make([]models.Fix, 0)
	}

	data, err := json.MarshalIndent(&Archive{Metadata: file, Data: fixes}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup archive: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write backup archive: %w", err)
	}
	return nil
}

// writeCSVArchive writes fixes as CSV. The header row is always present,
// even when there are no fixes.
func writeCSVArchive(path string, fixes []models.Fix) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create backup archive: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range fixes {
		if err := w.Write(csvRecord(&fixes[i])); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush CSV archive: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close backup archive: %w", err)
	}
	return nil
}

// csvRecord renders one fix as a CSV row. Optional fields render empty.
func csvRecord(fix *models.Fix) []string {
	return []string{
		fix.ID,
		fix.DeviceID,
		formatFloat(fix.Latitude),
		formatFloat(fix.Longitude),
		formatFloatPtr(fix.Altitude),
		formatFloatPtr(fix.Speed),
		formatFloatPtr(fix.Heading),
		formatFloatPtr(fix.Accuracy),
		fix.Timestamp.UTC().Format(time.RFC3339),
		fix.AdditionalData,
		fix.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
