// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/waypost/internal/backup"
	"github.com/tomtom215/waypost/internal/ingest"
	"github.com/tomtom215/waypost/internal/models"
	ws "github.com/tomtom215/waypost/internal/websocket"
)

type fakeIngestor struct {
	result      *ingest.Result
	err         error
	submissions []*models.FixSubmission
}

func (f *fakeIngestor) Ingest(_ context.Context, sub *models.FixSubmission) (*ingest.Result, error) {
	f.submissions = append(f.submissions, sub)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeFixStore struct {
	fixes     []models.Fix
	total     int64
	devices   []models.DeviceStats
	snapshot  *models.StatsSnapshot
	queryErr  error
	pingErr   error
	lastQuery models.FixQuery
}

func (f *fakeFixStore) QueryFixes(_ context.Context, q models.FixQuery) ([]models.Fix, error) {
	f.lastQuery = q
	return f.fixes, f.queryErr
}

func (f *fakeFixStore) CountFixes(_ context.Context, _ string) (int64, error) {
	return f.total, f.queryErr
}

func (f *fakeFixStore) DeviceStats(_ context.Context) ([]models.DeviceStats, error) {
	return f.devices, f.queryErr
}

func (f *fakeFixStore) LatestSnapshot(_ context.Context) (*models.StatsSnapshot, error) {
	return f.snapshot, f.queryErr
}

func (f *fakeFixStore) Ping(_ context.Context) error { return f.pingErr }

type fakeBackupManager struct {
	file        *backup.File
	createErr   error
	formats     []backup.Format
	files       []*backup.File
	resolvePath string
	resolveFile *backup.File
	resolveErr  error
	removed     int
	cleanupErr  error
}

func (f *fakeBackupManager) CreateBackup(_ context.Context, format backup.Format) (*backup.File, error) {
	f.formats = append(f.formats, format)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.file, nil
}

func (f *fakeBackupManager) ListFiles() []*backup.File { return f.files }

func (f *fakeBackupManager) ResolveDownload(_ string) (string, *backup.File, error) {
	if f.resolveErr != nil {
		return "", nil, f.resolveErr
	}
	return f.resolvePath, f.resolveFile, nil
}

func (f *fakeBackupManager) CleanupExpired() (int, error) {
	return f.removed, f.cleanupErr
}

type fakeSnapshotBuilder struct {
	snapshot *models.StatsSnapshot
	err      error
	calls    int
}

func (f *fakeSnapshotBuilder) BuildSnapshot(_ context.Context) (*models.StatsSnapshot, error) {
	f.calls++
	return f.snapshot, f.err
}

// handlerFixture bundles a handler set with its fakes.
type handlerFixture struct {
	handlers *Handlers
	ingestor *fakeIngestor
	store    *fakeFixStore
	backups  *fakeBackupManager
	stats    *fakeSnapshotBuilder
	hub      *ws.Hub
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		ingestor: &fakeIngestor{},
		store:    &fakeFixStore{},
		backups:  &fakeBackupManager{},
		stats:    &fakeSnapshotBuilder{},
		hub:      ws.NewHub(),
	}
	f.handlers = NewHandlers(f.ingestor, f.store, f.backups, f.stats, f.hub, nil)
	return f
}

// decodeEnvelope parses the response body into the standard envelope.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *models.APIResponse {
	t.Helper()

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

// dataMap asserts the envelope data is a JSON object and returns it.
func dataMap(t *testing.T, resp *models.APIResponse) map[string]interface{} {
	t.Helper()

	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "envelope data is not an object: %T", resp.Data)
	return m
}

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func testFixResponse(deviceID string) models.FixResponse {
	speedMS := 25.0
	return models.FixResponse{
		Fix: models.Fix{
			ID:        "0b2d3f9e-61c4-4f5a-9d7e-1a2b3c4d5e6f",
			DeviceID:  deviceID,
			Latitude:  52.52,
			Longitude: 13.405,
			Timestamp: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
			CreatedAt: time.Date(2026, 8, 28, 12, 0, 1, 0, time.UTC),
		},
		SpeedMS:              &speedMS,
		DistanceFromOriginKM: 5907.41,
	}
}
