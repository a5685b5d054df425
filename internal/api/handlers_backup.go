// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/waypost/internal/backup"
)

// CreateBackup handles POST /api/backup/create. The format query
// parameter selects json (default) or csv.
func (h *Handlers) CreateBackup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	format := backup.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = backup.FormatJSON
	}

	file, err := h.backups.CreateBackup(r.Context(), format)
	if err != nil {
		if errors.Is(err, backup.ErrInvalidFormat) {
			rw.BadRequest(err.Error())
			return
		}
		rw.ExportError(err)
		return
	}

	rw.Created(file)
}

// ListBackups handles GET /api/backup/files. Files are returned newest
// first, expired archives are excluded.
func (h *Handlers) ListBackups(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	files := h.backups.ListFiles()
	rw.Success(map[string]interface{}{
		"count": len(files),
		"files": files,
	})
}

// DownloadBackup handles GET /api/backup/download/{filename}. The
// filename is validated against the archive naming pattern before any
// filesystem access, so traversal attempts never reach the disk.
func (h *Handlers) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filename := chi.URLParam(r, "filename")

	path, file, err := h.backups.ResolveDownload(filename)
	if err != nil {
		switch {
		case errors.Is(err, backup.ErrInvalidFilename):
			rw.BadRequest("invalid backup filename")
		case errors.Is(err, backup.ErrBackupExpired), errors.Is(err, backup.ErrBackupNotFound):
			rw.NotFound("backup file not found")
		default:
			rw.ExportError(err)
		}
		return
	}

	contentType := "application/json"
	if file.Format == backup.FormatCSV {
		contentType = "text/csv"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	http.ServeFile(w, r, path)
}

// CleanupBackups handles DELETE /api/backup/cleanup, forcing an
// immediate sweep of expired archives.
func (h *Handlers) CleanupBackups(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	removed, err := h.backups.CleanupExpired()
	if err != nil {
		rw.ExportError(err)
		return
	}

	rw.Success(map[string]interface{}{
		"removed": removed,
	})
}
