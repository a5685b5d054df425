// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package api provides the HTTP surface: routing, middleware wiring and
// request handlers. All endpoints respond with the standardized
// models.APIResponse envelope.
package api

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/models"
)

// Error codes for API responses
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeRateLimit    = "RATE_LIMIT_EXCEEDED"
	ErrCodeStorage      = "STORAGE_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeExport       = "EXPORT_ERROR"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeMethodNotAll = "METHOD_NOT_ALLOWED"
)

// Status values for the response envelope
const (
	statusSuccess = "success"
	statusError   = "error"
)

// ResponseWriter writes standardized envelope responses for one request.
type ResponseWriter struct {
	w http.ResponseWriter
	r *http.Request

	// queryTime, when set, is reported as metadata.query_time_ms
	queryTime time.Duration
	timed     bool
}

// NewResponseWriter creates a response writer for the request.
func NewResponseWriter(w http.ResponseWriter, r *http.Request) *ResponseWriter {
	return &ResponseWriter{w: w, r: r}
}

// WithQueryTime attaches the storage query duration to the response
// metadata. Chainable.
func (rw *ResponseWriter) WithQueryTime(d time.Duration) *ResponseWriter {
	rw.queryTime = d
	rw.timed = true
	return rw
}

// Success writes a 200 success envelope with data.
func (rw *ResponseWriter) Success(data interface{}) {
	rw.writeSuccess(http.StatusOK, data)
}

// Created writes a 201 success envelope with data.
func (rw *ResponseWriter) Created(data interface{}) {
	rw.writeSuccess(http.StatusCreated, data)
}

// Error writes an error envelope with the given status and code.
func (rw *ResponseWriter) Error(statusCode int, code, message string) {
	rw.ErrorWithDetails(statusCode, code, message, nil)
}

// ErrorWithDetails writes an error envelope with structured details.
func (rw *ResponseWriter) ErrorWithDetails(statusCode int, code, message string, details map[string]interface{}) {
	response := models.APIResponse{
		Status: statusError,
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Metadata: rw.metadata(),
	}
	rw.writeJSON(statusCode, &response)
}

// ValidationError writes a 422 envelope for a rejected submission.
func (rw *ResponseWriter) ValidationError(message string, details map[string]interface{}) {
	rw.ErrorWithDetails(http.StatusUnprocessableEntity, ErrCodeValidation, message, details)
}

// BadRequest writes a 400 envelope for malformed input.
func (rw *ResponseWriter) BadRequest(message string) {
	rw.Error(http.StatusBadRequest, ErrCodeValidation, message)
}

// RateLimited writes a 429 envelope.
func (rw *ResponseWriter) RateLimited(message string) {
	rw.Error(http.StatusTooManyRequests, ErrCodeRateLimit, message)
}

// NotFound writes a 404 envelope.
func (rw *ResponseWriter) NotFound(message string) {
	rw.Error(http.StatusNotFound, ErrCodeNotFound, message)
}

// StorageError writes a 500 envelope for database failures. The error
// is logged, not leaked to the client.
func (rw *ResponseWriter) StorageError(err error) {
	logging.CtxErr(rw.r.Context(), err).Msg("Storage error")
	rw.Error(http.StatusInternalServerError, ErrCodeStorage, "a storage error occurred")
}

// ExportError writes a 500 envelope for backup export failures.
func (rw *ResponseWriter) ExportError(err error) {
	logging.CtxErr(rw.r.Context(), err).Msg("Export error")
	rw.Error(http.StatusInternalServerError, ErrCodeExport, "backup export failed")
}

func (rw *ResponseWriter) writeSuccess(statusCode int, data interface{}) {
	response := models.APIResponse{
		Status:   statusSuccess,
		Data:     data,
		Metadata: rw.metadata(),
	}

	body, err := json.Marshal(&response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
		rw.w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// Weak ETag over the payload; the metadata timestamp changes every
	// response, so hash the data portion only.
	if statusCode == http.StatusOK {
		etag := etagFor(data)
		rw.w.Header().Set("ETag", etag)
		if match := rw.r.Header.Get("If-None-Match"); match != "" && match == etag {
			rw.w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.WriteHeader(statusCode)
	if _, err := rw.w.Write(body); err != nil {
		logging.Error().Err(err).Msg("Failed to write response body")
	}
}

// etagFor computes a weak FNV-1a ETag for the data payload.
func etagFor(data interface{}) string {
	h := fnv.New64a()
	if body, err := json.Marshal(data); err == nil {
		_, _ = h.Write(body)
	}
	return fmt.Sprintf(`W/"%x"`, h.Sum64())
}

func (rw *ResponseWriter) metadata() models.Metadata {
	meta := models.Metadata{Timestamp: time.Now().UTC()}
	if rw.timed {
		meta.QueryTimeMS = rw.queryTime.Milliseconds()
	}
	return meta
}

func (rw *ResponseWriter) writeJSON(statusCode int, response *models.APIResponse) {
	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.WriteHeader(statusCode)

	if err := json.NewEncoder(rw.w).Encode(response); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
