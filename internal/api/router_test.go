// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/waypost/internal/backup"
	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/ingest"
	"github.com/tomtom215/waypost/internal/models"
)

func newTestRouter(t *testing.T, f *handlerFixture) http.Handler {
	t.Helper()
	return NewRouter(f.handlers).Setup()
}

func TestRouterSubmitFix(t *testing.T) {
	f := newHandlerFixture(t)
	f.ingestor.result = &ingest.Result{Response: testFixResponse("truck-7")}
	router := newTestRouter(t, f)

	body := `{"device_id":"truck-7","latitude":52.52,"longitude":13.405}`
	req := httptest.NewRequest(http.MethodPost, "/api/gps/data", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "success", decodeEnvelope(t, rec).Status)
}

func TestRouterListDevices(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.devices = []models.DeviceStats{{DeviceID: "truck-7"}}
	router := newTestRouter(t, f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/gps/devices", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterHealth(t *testing.T) {
	f := newHandlerFixture(t)
	router := newTestRouter(t, f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterMetricsEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	router := newTestRouter(t, f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestRouterUnknownRoute(t *testing.T) {
	f := newHandlerFixture(t)
	router := newTestRouter(t, f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterMethodNotAllowed(t *testing.T) {
	f := newHandlerFixture(t)
	router := newTestRouter(t, f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/backup/create", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// emptyFixStore satisfies the exporter's store dependency.
type emptyFixStore struct{}

func (emptyFixStore) AllFixesAscending(_ context.Context) ([]models.Fix, error) {
	return nil, nil
}

// Traversal attempts against the download route must be rejected before
// any filesystem access happens.
func TestRouterDownloadRejectsTraversal(t *testing.T) {
	f := newHandlerFixture(t)

	exporter, err := backup.NewExporter(&config.BackupConfig{
		Dir: t.TempDir(),
		TTL: 24 * time.Hour,
	}, emptyFixStore{})
	require.NoError(t, err)
	t.Cleanup(exporter.Close)

	f.handlers.backups = exporter
	router := newTestRouter(t, f)

	targets := []string{
		"/api/backup/download/..%2F..%2Fetc%2Fpasswd",
		"/api/backup/download/%2e%2e%2fgps_backup_20260828_120000.json",
		"/api/backup/download/gps_backup_20260828_120000.json%00.csv",
	}

	for _, target := range targets {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.NotEqual(t, http.StatusOK, rec.Code, "target %s must not succeed", target)
	}
}

func TestRouterDownloadUnknownBackup(t *testing.T) {
	f := newHandlerFixture(t)

	exporter, err := backup.NewExporter(&config.BackupConfig{
		Dir: t.TempDir(),
		TTL: 24 * time.Hour,
	}, emptyFixStore{})
	require.NoError(t, err)
	t.Cleanup(exporter.Close)

	f.handlers.backups = exporter
	router := newTestRouter(t, f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/backup/download/gps_backup_20260828_120000.json", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, decodeEnvelope(t, rec).Error.Code)
}

func TestRouterWebSocketUpgrade(t *testing.T) {
	f := newHandlerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = f.hub.RunWithContext(ctx) }()

	srv := httptest.NewServer(newTestRouter(t, f))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	if resp != nil {
		defer resp.Body.Close()
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "connection_established", msg.Type)
}
