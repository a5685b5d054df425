// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/waypost/internal/models"
)

// Stats handles GET /api/system/stats. It serves the governor's latest
// persisted snapshot when one exists and falls back to computing one
// live, so the endpoint works before the first governor tick.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	queryStart := time.Now()
	snapshot, err := h.store.LatestSnapshot(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}

	if snapshot == nil {
		snapshot, err = h.stats.BuildSnapshot(r.Context())
		if err != nil {
			rw.StorageError(err)
			return
		}
	}

	rw.WithQueryTime(time.Since(queryStart)).Success(snapshot)
}

// Health handles GET /health. Always returns 200, the database state is
// reported in the body so probes can distinguish degraded from down.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := models.HealthStatus{
		Status:            "ok",
		Version:           Version,
		DatabaseConnected: true,
		Uptime:            time.Since(h.startTime).Seconds(),
	}

	if err := h.store.Ping(r.Context()); err != nil {
		status.Status = "degraded"
		status.DatabaseConnected = false
	}

	rw.Success(&status)
}
