// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waypost/internal/ingest"
	"github.com/tomtom215/waypost/internal/models"
	"github.com/tomtom215/waypost/internal/validation"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ingestResponse is the data payload for an accepted fix.
type ingestResponse struct {
	Fix      models.FixResponse `json:"fix"`
	Warnings []string           `json:"warnings,omitempty"`
}

// SubmitFix handles POST /api/gps/data.
//
// Responses: 201 on success, 400 for malformed JSON, 422 for a fix that
// fails validation, 429 when the device exceeds its rate.
func (h *Handlers) SubmitFix(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var sub models.FixSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		rw.BadRequest("request body is not valid JSON")
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), &sub)
	if err != nil {
		h.writeIngestError(rw, err)
		return
	}

	rw.Created(&ingestResponse{
		Fix:      result.Response,
		Warnings: result.Warnings,
	})
}

// writeIngestError maps pipeline errors onto envelope responses.
func (h *Handlers) writeIngestError(rw *ResponseWriter, err error) {
	if errors.Is(err, ingest.ErrRateLimited) {
		rw.RateLimited("device exceeded 1 submission per second")
		return
	}

	var fixErr *validation.FixError
	if errors.As(err, &fixErr) {
		rw.ValidationError(fixErr.Reason, map[string]interface{}{
			"field": fixErr.Field,
		})
		return
	}

	rw.StorageError(err)
}

// ListFixes handles GET /api/gps/data with optional device_id,
// start_time, end_time, limit and offset query parameters.
func (h *Handlers) ListFixes(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	query, err := parseFixQuery(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	queryStart := time.Now()
	fixes, err := h.store.QueryFixes(r.Context(), *query)
	if err != nil {
		rw.StorageError(err)
		return
	}

	total, err := h.store.CountFixes(r.Context(), query.DeviceID)
	if err != nil {
		rw.StorageError(err)
		return
	}

	responses := make([]models.FixResponse, 0, len(fixes))
	for i := range fixes {
		responses = append(responses, fixes[i].ToResponse())
	}

	rw.WithQueryTime(time.Since(queryStart)).Success(&models.FixListResponse{
		Total:  total,
		Limit:  query.Limit,
		Offset: query.Offset,
		Fixes:  responses,
	})
}

// ListDevices handles GET /api/gps/devices.
func (h *Handlers) ListDevices(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	queryStart := time.Now()
	devices, err := h.store.DeviceStats(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}

	rw.WithQueryTime(time.Since(queryStart)).Success(map[string]interface{}{
		"count":   len(devices),
		"devices": devices,
	})
}

// parseFixQuery validates list query parameters.
func parseFixQuery(r *http.Request) (*models.FixQuery, error) {
	q := &models.FixQuery{
		DeviceID: r.URL.Query().Get("device_id"),
		Limit:    defaultListLimit,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			return nil, errors.New("limit must be an integer between 1 and 1000")
		}
		q.Limit = limit
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, errors.New("offset must be a non-negative integer")
		}
		q.Offset = offset
	}

	if raw := r.URL.Query().Get("start_time"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.New("start_time must be an RFC3339 timestamp")
		}
		q.Start = start
	}

	if raw := r.URL.Query().Get("end_time"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.New("end_time must be an RFC3339 timestamp")
		}
		q.End = end
	}

	if !q.Start.IsZero() && !q.End.IsZero() && q.End.Before(q.Start) {
		return nil, errors.New("end_time must not be before start_time")
	}

	return q, nil
}
