// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package ingest ties the admission pipeline together: rate gate, then
// validation, then storage, then live broadcast. The HTTP handler calls
// Ingest and maps its errors onto status codes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
	"github.com/tomtom215/waypost/internal/validation"
)

// ErrRateLimited is returned when a device exceeds its submission rate.
var ErrRateLimited = errors.New("device exceeded submission rate")

// Store persists accepted fixes.
type Store interface {
	InsertFix(ctx context.Context, fix *models.Fix) error
}

// Gate admits or rejects a submission for a device key.
type Gate interface {
	Allow(key string) bool
}

// Tracker counts every submission attempt for the request-rate stats.
type Tracker interface {
	Record()
}

// Broadcaster pushes accepted fixes to live subscribers.
type Broadcaster interface {
	BroadcastFix(fix *models.FixResponse)
}

// Result is a successfully ingested fix plus any non-fatal warnings
// collected during validation.
type Result struct {
	Response models.FixResponse
	Warnings []string
}

// Coordinator runs the ingestion pipeline.
type Coordinator struct {
	validator *validation.FixValidator
	store     Store
	gate      Gate
	tracker   Tracker
	hub       Broadcaster
}

// NewCoordinator creates an ingestion coordinator.
func NewCoordinator(
	validator *validation.FixValidator,
	store Store,
	gate Gate,
	tracker Tracker,
	hub Broadcaster,
) *Coordinator {
	return &Coordinator{
		validator: validator,
		store:     store,
		gate:      gate,
		tracker:   tracker,
		hub:       hub,
	}
}

// Ingest admits, validates, persists and broadcasts one submission.
//
// Every attempt counts toward the request-rate stats, including rejected
// ones. The rate gate runs before validation so a flooding device cannot
// burn validation cycles. Broadcast happens after the write and is fire
// and forget: a full hub never fails an accepted fix.
func (c *Coordinator) Ingest(ctx context.Context, sub *models.FixSubmission) (*Result, error) {
	start := time.Now()
	c.tracker.Record()

	// Gate on the trimmed id; an empty id falls through so validation
	// can report the real problem instead of a rate-limit error.
	key := strings.TrimSpace(sub.DeviceID)
	if key != "" && !c.gate.Allow(key) {
		metrics.RecordIngest(metrics.OutcomeRateLimited, time.Since(start))
		metrics.RateLimitRejections.Inc()
		logging.Debug().Str("device_id", key).Msg("submission rate limited")
		return nil, ErrRateLimited
	}

	result, verr := c.validator.Normalize(sub, time.Now().UTC())
	if verr != nil {
		metrics.RecordIngest(metrics.OutcomeRejected, time.Since(start))
		return nil, verr
	}

	if err := c.store.InsertFix(ctx, &result.Fix); err != nil {
		metrics.RecordIngest(metrics.OutcomeStorageError, time.Since(start))
		return nil, fmt.Errorf("failed to store fix: %w", err)
	}

	response := result.Fix.ToResponse()
	c.hub.BroadcastFix(&response)

	metrics.RecordIngest(metrics.OutcomeAccepted, time.Since(start))
	logging.Debug().
		Str("device_id", result.Fix.DeviceID).
		Str("fix_id", result.Fix.ID).
		Int("warnings", len(result.Warnings)).
		Msg("fix ingested")

	return &Result{Response: response, Warnings: result.Warnings}, nil
}
