// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package ratelimit

import (
	"sync"
	"time"
)

// Tracker counts ingestion requests in a bucketed sliding window for the
// requests-last-minute stat and keeps a running total for the
// per-minute average since startup.
//
// Complexity: Record O(1), LastMinute O(k) for k buckets.
type Tracker struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	numBuckets int
	current    int
	lastUpdate time.Time

	total     int64
	startedAt time.Time
}

const trackerWindow = time.Minute

// NewTracker creates a tracker with a one-minute window split into
// numBuckets buckets.
func NewTracker(numBuckets int) *Tracker {
	if numBuckets <= 0 {
		numBuckets = 60
	}

	now := time.Now()
	return &Tracker{
		buckets:    make([]int64, numBuckets),
		bucketSize: trackerWindow / time.Duration(numBuckets),
		numBuckets: numBuckets,
		lastUpdate: now,
		startedAt:  now,
	}
}

// Record counts one request.
func (t *Tracker) Record() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.advance()
	t.buckets[t.current]++
	t.total++
}

// LastMinute returns the number of requests in the sliding window.
func (t *Tracker) LastMinute() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.advance()

	var sum int64
	for _, c := range t.buckets {
		sum += c
	}
	return sum
}

// AveragePerMinute returns the mean request rate since startup. For the
// first minute of uptime the elapsed time is clamped to one minute so the
// average cannot exceed the observed count.
func (t *Tracker) AveragePerMinute() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	minutes := time.Since(t.startedAt).Minutes()
	if minutes < 1 {
		minutes = 1
	}
	return float64(t.total) / minutes
}

// Total returns the number of requests recorded since startup.
func (t *Tracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// advance moves the window forward based on elapsed time.
// Must be called with mu held.
func (t *Tracker) advance() {
	now := time.Now()
	elapsed := now.Sub(t.lastUpdate)

	bucketsElapsed := int(elapsed / t.bucketSize)
	if bucketsElapsed <= 0 {
		return
	}

	if bucketsElapsed >= t.numBuckets {
		for i := range t.buckets {
			t.buckets[i] = 0
		}
		t.current = 0
	} else {
		for i := 0; i < bucketsElapsed; i++ {
			t.current = (t.current + 1) % t.numBuckets
			t.buckets[t.current] = 0
		}
	}

	t.lastUpdate = t.lastUpdate.Add(time.Duration(bucketsElapsed) * t.bucketSize)
}
