// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordCountsRequests(t *testing.T) {
	tracker := NewTracker(60)

	for i := 0; i < 5; i++ {
		tracker.Record()
	}

	assert.Equal(t, int64(5), tracker.LastMinute())
	assert.Equal(t, int64(5), tracker.Total())
}

func TestTrackerEmptyWindow(t *testing.T) {
	tracker := NewTracker(60)

	assert.Zero(t, tracker.LastMinute())
	assert.Zero(t, tracker.Total())
	assert.Zero(t, tracker.AveragePerMinute())
}

func TestTrackerDefaultBucketCount(t *testing.T) {
	tracker := NewTracker(0)

	assert.Equal(t, 60, tracker.numBuckets)
	assert.Equal(t, time.Second, tracker.bucketSize)
}

func TestTrackerAverageClampedInFirstMinute(t *testing.T) {
	tracker := NewTracker(60)

	for i := 0; i < 10; i++ {
		tracker.Record()
	}

	// Elapsed time is clamped to one minute, so the average equals the
	// count instead of exploding toward infinity.
	assert.InDelta(t, 10.0, tracker.AveragePerMinute(), 0.001)
}

func TestTrackerWindowExpiry(t *testing.T) {
	tracker := NewTracker(4) // 15s buckets for a fast-forward test

	tracker.Record()
	tracker.Record()
	assert.Equal(t, int64(2), tracker.LastMinute())

	// Simulate the whole window elapsing
	tracker.mu.Lock()
	tracker.lastUpdate = tracker.lastUpdate.Add(-2 * time.Minute)
	tracker.mu.Unlock()

	assert.Zero(t, tracker.LastMinute())
	// Total is lifetime, not windowed
	assert.Equal(t, int64(2), tracker.Total())
}

func TestTrackerPartialWindowExpiry(t *testing.T) {
	tracker := NewTracker(4)

	tracker.Record()

	// Advance past one bucket but keep the rest of the window
	tracker.mu.Lock()
	tracker.lastUpdate = tracker.lastUpdate.Add(-16 * time.Second)
	tracker.mu.Unlock()

	assert.Equal(t, int64(1), tracker.LastMinute())
}

func TestTrackerConcurrentRecord(t *testing.T) {
	tracker := NewTracker(60)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.Record()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), tracker.Total())
}
