// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/waypost/internal/middleware"
)

// Router builds the HTTP routing table.
type Router struct {
	handlers *Handlers
	mw       *ChiMiddleware
}

// NewRouter creates a router for the given handler set.
func NewRouter(handlers *Handlers) *Router {
	return &Router{
		handlers: handlers,
		mw:       NewChiMiddleware(handlers.corsOrigins),
	}
}

// Setup wires all routes and middleware and returns the root handler.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware. Order matters: request IDs first so every
	// later log line carries one, CORS before routing so preflight
	// OPTIONS requests are answered everywhere.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.mw.CORS())
	r.Use(middleware.PrometheusMetrics)
	r.Use(SecurityHeaders())

	r.Route("/api", func(r chi.Router) {
		r.Route("/gps", func(r chi.Router) {
			r.With(rt.mw.RateLimit(RateLimitIngest)).Post("/data", rt.handlers.SubmitFix)
			r.With(rt.mw.RateLimit(RateLimitAPI)).Get("/data", rt.handlers.ListFixes)
			r.With(rt.mw.RateLimit(RateLimitAPI)).Get("/devices", rt.handlers.ListDevices)
		})

		r.With(rt.mw.RateLimit(RateLimitAPI)).Get("/system/stats", rt.handlers.Stats)

		r.Route("/backup", func(r chi.Router) {
			r.Use(rt.mw.RateLimit(RateLimitExport))
			r.Post("/create", rt.handlers.CreateBackup)
			r.Get("/files", rt.handlers.ListBackups)
			r.Get("/download/{filename}", rt.handlers.DownloadBackup)
			r.Delete("/cleanup", rt.handlers.CleanupBackups)
		})
	})

	r.Get("/ws", rt.handlers.ServeWebSocket)

	r.With(rt.mw.RateLimit(RateLimitHealth)).Get("/health", rt.handlers.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
