// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseWriterSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/gps/devices", nil)

	NewResponseWriter(rec, req).Success(map[string]interface{}{"count": 0})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "success", resp.Status)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Metadata.Timestamp.IsZero())
}

func TestResponseWriterSetsETag(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/gps/devices", nil)

	NewResponseWriter(rec, req).Success(map[string]interface{}{"count": 3})

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Contains(t, etag, `W/"`)
}

func TestResponseWriterNotModified(t *testing.T) {
	payload := map[string]interface{}{"count": 3}

	first := httptest.NewRecorder()
	NewResponseWriter(first, httptest.NewRequest(http.MethodGet, "/api/gps/devices", nil)).Success(payload)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/api/gps/devices", nil)
	req.Header.Set("If-None-Match", etag)
	second := httptest.NewRecorder()
	NewResponseWriter(second, req).Success(payload)

	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Empty(t, second.Body.String())
}

func TestResponseWriterQueryTimeMetadata(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/gps/data", nil)

	NewResponseWriter(rec, req).WithQueryTime(25 * time.Millisecond).Success(nil)

	resp := decodeEnvelope(t, rec)
	assert.Equal(t, int64(25), resp.Metadata.QueryTimeMS)
}

func TestResponseWriterErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/gps/data", nil)

	NewResponseWriter(rec, req).NotFound("no such fix")

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "no such fix", resp.Error.Message)
}

func TestResponseWriterCreatedHasNoETag(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/gps/data", nil)

	NewResponseWriter(rec, req).Created(map[string]interface{}{"id": "abc"})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get("ETag"))
}
