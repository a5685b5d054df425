// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// RateLimitConfig defines per-IP rate limit parameters for a route group.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Per-IP rate limits by route group. These are deliberately coarse, the
// real admission control for telemetry is the per-device gate inside the
// ingestion pipeline.
var (
	// RateLimitAPI is the default for read endpoints
	RateLimitAPI = RateLimitConfig{Requests: 300, Window: time.Minute}

	// RateLimitIngest allows many devices behind one NAT
	RateLimitIngest = RateLimitConfig{Requests: 600, Window: time.Minute}

	// RateLimitExport is strict, exports read the whole table
	RateLimitExport = RateLimitConfig{Requests: 10, Window: time.Minute}

	// RateLimitHealth is permissive for monitoring probes
	RateLimitHealth = RateLimitConfig{Requests: 1000, Window: time.Minute}
)

// ChiMiddleware provides Chi-compatible middleware factories built from
// server configuration.
type ChiMiddleware struct {
	cors func(http.Handler) http.Handler
}

// NewChiMiddleware builds the middleware factory. CORS origins come from
// configuration, an empty list denies all cross-origin browsers.
func NewChiMiddleware(corsOrigins []string) *ChiMiddleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	})

	return &ChiMiddleware{cors: corsHandler}
}

// CORS returns the go-chi/cors handler. Must be global so OPTIONS
// preflight requests are answered on every route.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns an IP-keyed limiter for the given config.
func (m *ChiMiddleware) RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.LimitByIP(cfg.Requests, cfg.Window)
}

// SecurityHeaders adds baseline security headers to API responses.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
