// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waypost/internal/models"
)

// Coordinate and sensor bounds. Accuracy above accuracyWarnMeters is
// accepted with a warning; everything else out of bounds is rejected.
const (
	minLatitude  = -90.0
	maxLatitude  = 90.0
	minLongitude = -180.0
	maxLongitude = 180.0

	minAltitudeMeters = -1000.0
	maxAltitudeMeters = 10000.0

	minAccuracyMeters  = 0.0
	maxAccuracyMeters  = 10000.0
	accuracyWarnMeters = 50.0

	maxHeadingDegrees = 360.0

	// maxCoordinateDecimals bounds coordinate precision. Consumer GPS
	// yields at most ~8 decimals; more indicates a corrupt reading.
	maxCoordinateDecimals = 12

	maxDeviceIDLength = 50
)

// FixError is a validation rejection for a single submitted fix.
type FixError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *FixError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Rules carries the configurable validation bounds.
type Rules struct {
	MaxSpeedKMH     float64
	StalenessWindow time.Duration
	MaxFutureSkew   time.Duration
	MaxPayloadChars int
}

// DefaultRules returns the production validation bounds.
func DefaultRules() Rules {
	return Rules{
		MaxSpeedKMH:     720.0,
		StalenessWindow: 7 * 24 * time.Hour,
		MaxFutureSkew:   time.Hour,
		MaxPayloadChars: 1000,
	}
}

// FixValidator validates and normalizes submitted fixes.
type FixValidator struct {
	rules Rules
}

// NewFixValidator creates a validator with the given rules.
func NewFixValidator(rules Rules) *FixValidator {
	return &FixValidator{rules: rules}
}

// Result is a normalized fix plus non-fatal warnings.
type Result struct {
	Fix      models.Fix
	Warnings []string
}

// Normalize validates a submission against the rules in order, first
// failure wins. On success it returns a normalized fix: timestamp
// defaulted to now and converted to UTC, whitespace-trimmed device id.
// The returned fix has no ID or CreatedAt; the storage layer assigns those.
func (v *FixValidator) Normalize(sub *models.FixSubmission, now time.Time) (*Result, *FixError) {
	deviceID := strings.TrimSpace(sub.DeviceID)
	if deviceID == "" {
		return nil, &FixError{Field: "device_id", Reason: "device_id is required"}
	}
	if len(deviceID) > maxDeviceIDLength {
		return nil, &FixError{
			Field:  "device_id",
			Reason: fmt.Sprintf("device_id must be at most %d characters", maxDeviceIDLength),
		}
	}

	if err := v.checkCoordinate("latitude", sub.Latitude, minLatitude, maxLatitude); err != nil {
		return nil, err
	}
	if err := v.checkCoordinate("longitude", sub.Longitude, minLongitude, maxLongitude); err != nil {
		return nil, err
	}

	if sub.Speed != nil {
		if *sub.Speed < 0 {
			return nil, &FixError{Field: "speed", Reason: "speed must not be negative"}
		}
		if *sub.Speed > v.rules.MaxSpeedKMH {
			return nil, &FixError{
				Field:  "speed",
				Reason: fmt.Sprintf("speed exceeds maximum of %.0f km/h", v.rules.MaxSpeedKMH),
			}
		}
	}

	var warnings []string
	if sub.Accuracy != nil {
		if *sub.Accuracy < minAccuracyMeters || *sub.Accuracy > maxAccuracyMeters {
			return nil, &FixError{
				Field:  "accuracy",
				Reason: fmt.Sprintf("accuracy must be between %.0f and %.0f meters", minAccuracyMeters, maxAccuracyMeters),
			}
		}
		if *sub.Accuracy > accuracyWarnMeters {
			warnings = append(warnings,
				fmt.Sprintf("accuracy %.1fm exceeds %.0fm, position may be unreliable", *sub.Accuracy, accuracyWarnMeters))
		}
	}

	if sub.Altitude != nil {
		if *sub.Altitude < minAltitudeMeters || *sub.Altitude > maxAltitudeMeters {
			return nil, &FixError{
				Field:  "altitude",
				Reason: fmt.Sprintf("altitude must be between %.0f and %.0f meters", minAltitudeMeters, maxAltitudeMeters),
			}
		}
	}

	if sub.Heading != nil {
		if *sub.Heading < 0 || *sub.Heading >= maxHeadingDegrees {
			return nil, &FixError{Field: "heading", Reason: "heading must be in [0, 360)"}
		}
	}

	ts, err := v.normalizeTimestamp(sub.Timestamp, now)
	if err != nil {
		return nil, err
	}

	payload := strings.TrimSpace(sub.AdditionalData)
	if payload != "" {
		if len(payload) > v.rules.MaxPayloadChars {
			return nil, &FixError{
				Field:  "additional_data",
				Reason: fmt.Sprintf("additional_data must be at most %d characters", v.rules.MaxPayloadChars),
			}
		}
		if !json.Valid([]byte(payload)) {
			return nil, &FixError{Field: "additional_data", Reason: "additional_data must be valid JSON"}
		}
	}

	return &Result{
		Fix: models.Fix{
			DeviceID:       deviceID,
			Latitude:       sub.Latitude,
			Longitude:      sub.Longitude,
			Altitude:       sub.Altitude,
			Speed:          sub.Speed,
			Heading:        sub.Heading,
			Accuracy:       sub.Accuracy,
			Timestamp:      ts,
			AdditionalData: payload,
		},
		Warnings: warnings,
	}, nil
}

// checkCoordinate validates range, the exact-zero sentinel and precision
// for a latitude or longitude value.
func (v *FixValidator) checkCoordinate(field string, value, minVal, maxVal float64) *FixError {
	if value < minVal || value > maxVal {
		return &FixError{
			Field:  field,
			Reason: fmt.Sprintf("%s must be between %.0f and %.0f", field, minVal, maxVal),
		}
	}

	// Exactly 0.0 is the classic "no GPS lock" sentinel, not a real
	// position report.
	if value == 0.0 {
		return &FixError{
			Field:  field,
			Reason: fmt.Sprintf("%s of exactly 0.0 indicates a missing GPS lock", field),
		}
	}

	if decimalPlaces(value) > maxCoordinateDecimals {
		return &FixError{
			Field:  field,
			Reason: fmt.Sprintf("%s exceeds %d decimal places of precision", field, maxCoordinateDecimals),
		}
	}

	return nil
}

// decimalPlaces counts the digits after the decimal point in the shortest
// exact representation of f.
func decimalPlaces(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// normalizeTimestamp applies the default, converts to UTC and enforces
// the future-skew and staleness bounds.
func (v *FixValidator) normalizeTimestamp(ts *time.Time, now time.Time) (time.Time, *FixError) {
	if ts == nil || ts.IsZero() {
		return now.UTC(), nil
	}

	utc := ts.UTC()
	if utc.After(now.Add(v.rules.MaxFutureSkew)) {
		return time.Time{}, &FixError{
			Field:  "timestamp",
			Reason: fmt.Sprintf("timestamp is more than %s in the future", v.rules.MaxFutureSkew),
		}
	}
	if utc.Before(now.Add(-v.rules.StalenessWindow)) {
		return time.Time{}, &FixError{
			Field:  "timestamp",
			Reason: fmt.Sprintf("timestamp is older than %s", v.rules.StalenessWindow),
		}
	}

	return utc, nil
}
