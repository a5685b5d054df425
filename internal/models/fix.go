// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package models defines the shared data types exchanged between the
// ingestion pipeline, storage layer, HTTP API and WebSocket hub.
package models

import (
	"math"
	"time"
)

// Fix is a single persisted GPS position report.
//
// Latitude and Longitude are required; Altitude, Speed, Heading and Accuracy
// are optional and stored as pointers so "absent" and "zero" stay distinct.
// Speed is stored in km/h as submitted; derived units are computed on read
// (see FixResponse).
type Fix struct {
	ID             string    `json:"id"`
	DeviceID       string    `json:"device_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Altitude       *float64  `json:"altitude,omitempty"`
	Speed          *float64  `json:"speed,omitempty"`
	Heading        *float64  `json:"heading,omitempty"`
	Accuracy       *float64  `json:"accuracy,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	AdditionalData string    `json:"additional_data,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// FixSubmission is the inbound payload for POST /api/gps/data.
// Timestamp is optional; when omitted the server time is used.
type FixSubmission struct {
	DeviceID       string     `json:"device_id"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	Altitude       *float64   `json:"altitude,omitempty"`
	Speed          *float64   `json:"speed,omitempty"`
	Heading        *float64   `json:"heading,omitempty"`
	Accuracy       *float64   `json:"accuracy,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	AdditionalData string     `json:"additional_data,omitempty"`
}

// FixResponse is a Fix enriched with server-derived fields returned to
// API and WebSocket consumers.
type FixResponse struct {
	Fix

	// SpeedMS is the submitted speed converted from km/h to m/s,
	// rounded to 2 decimals. Nil when no speed was submitted.
	SpeedMS *float64 `json:"speed_ms,omitempty"`

	// DistanceFromOriginKM is the great-circle distance from (0,0)
	// in kilometers, rounded to 2 decimals.
	DistanceFromOriginKM float64 `json:"distance_from_origin_km"`
}

// earthRadiusKM is the mean Earth radius used for haversine distances.
const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance in kilometers between
// two WGS84 coordinates.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180.0

	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// Round2 rounds v to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ToResponse derives the computed read-side fields for a fix.
func (f *Fix) ToResponse() FixResponse {
	resp := FixResponse{
		Fix:                  *f,
		DistanceFromOriginKM: Round2(HaversineKM(f.Latitude, f.Longitude, 0, 0)),
	}
	if f.Speed != nil {
		ms := Round2(*f.Speed / 3.6)
		resp.SpeedMS = &ms
	}
	return resp
}

// FixQuery describes a storage query for persisted fixes.
// Zero-value time bounds mean unbounded.
type FixQuery struct {
	DeviceID string
	Start    time.Time
	End      time.Time
	Limit    int
	Offset   int
}

// DeviceStats is a per-device aggregate over stored fixes.
type DeviceStats struct {
	DeviceID      string    `json:"device_id"`
	FixCount      int64     `json:"fix_count"`
	FirstFixTime  time.Time `json:"first_fix_time"`
	LastFixTime   time.Time `json:"last_fix_time"`
	LastLatitude  float64   `json:"last_latitude"`
	LastLongitude float64   `json:"last_longitude"`
}
