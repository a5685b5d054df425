// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package ratelimit provides per-device admission control for the
// ingestion pipeline and a sliding-window request tracker for stats.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/waypost/internal/logging"
)

// Gate admits at most one fix per configured interval per key (device id).
// It keeps one token-bucket limiter per key in a bounded map; when the map
// is full, the longest-idle entry is evicted.
type Gate struct {
	mu       sync.Mutex
	limiters map[string]*gateEntry

	interval    time.Duration
	maxKeys     int
	inactiveTTL time.Duration
}

type gateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewGate creates a gate admitting one request per interval per key.
func NewGate(interval time.Duration, maxKeys int, inactiveTTL time.Duration) *Gate {
	if interval <= 0 {
		interval = time.Second
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	if inactiveTTL <= 0 {
		inactiveTTL = 10 * time.Minute
	}

	return &Gate{
		limiters:    make(map[string]*gateEntry),
		interval:    interval,
		maxKeys:     maxKeys,
		inactiveTTL: inactiveTTL,
	}
}

// Allow reports whether a request for key is admitted now. Burst is 1:
// a device gets exactly one slot per interval, with no credit for idling.
func (g *Gate) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	entry, ok := g.limiters[key]
	if !ok {
		if len(g.limiters) >= g.maxKeys {
			g.evictOldestLocked()
		}
		entry = &gateEntry{
			limiter: rate.NewLimiter(rate.Every(g.interval), 1),
		}
		g.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

// evictOldestLocked removes the entry with the oldest lastSeen.
// Must be called with mu held.
func (g *Gate) evictOldestLocked() {
	var oldestKey string
	var oldestSeen time.Time
	first := true

	for key, entry := range g.limiters {
		if first || entry.lastSeen.Before(oldestSeen) {
			oldestKey = key
			oldestSeen = entry.lastSeen
			first = false
		}
	}

	if oldestKey != "" {
		delete(g.limiters, oldestKey)
		logging.Debug().Str("key", oldestKey).Msg("Evicted idle rate limiter entry")
	}
}

// CleanupInactive removes entries idle longer than the inactive TTL and
// returns the number removed. Called periodically by the governor tick.
func (g *Gate) CleanupInactive() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := time.Now().Add(-g.inactiveTTL)
	removed := 0
	for key, entry := range g.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(g.limiters, key)
			removed++
		}
	}

	if removed > 0 {
		logging.Debug().Int("removed", removed).Msg("Cleaned up inactive rate limiter entries")
	}

	return removed
}

// Size returns the current number of tracked keys.
func (g *Gate) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.limiters)
}
