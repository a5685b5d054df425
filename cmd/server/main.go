// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package main is the entry point for the Waypost server.
//
// Waypost ingests GPS fixes from tracked devices over HTTP, validates
// and persists them in DuckDB, streams accepted fixes to WebSocket
// subscribers in real time, and keeps the database under a fixed
// storage budget by backing up and purging the oldest data.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered sources via Koanf v2 (defaults, config
//     file, environment variables)
//  2. Database: DuckDB with the fixes and stats snapshot tables
//  3. WebSocket hub: real-time fan-out of accepted fixes and stats
//  4. Ingestion pipeline: per-device rate gate, validation, storage
//  5. Backup exporter: JSON/CSV archives with a 24h download TTL
//  6. Capacity governor: periodic storage checks with purge enforcement
//  7. HTTP server: REST API, WebSocket endpoint, Prometheus metrics
//
// All long-running components run under a suture supervisor tree and
// are restarted with backoff if they fail.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables (WAYPOST_ prefix), config.yaml,
// built-in defaults.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: it stops
// accepting connections, drains in-flight requests within the server
// timeout, closes WebSocket clients, and closes the database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/waypost/internal/api"
	"github.com/tomtom215/waypost/internal/backup"
	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/database"
	"github.com/tomtom215/waypost/internal/ingest"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/monitor"
	"github.com/tomtom215/waypost/internal/ratelimit"
	"github.com/tomtom215/waypost/internal/supervisor"
	"github.com/tomtom215/waypost/internal/supervisor/services"
	"github.com/tomtom215/waypost/internal/validation"
	ws "github.com/tomtom215/waypost/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("backup_dir", cfg.Backup.Dir).
		Int64("storage_limit_bytes", cfg.Capacity.StorageLimitBytes).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	hub := ws.NewHub()

	gate := ratelimit.NewGate(cfg.RateLimit.Interval, cfg.RateLimit.MaxKeys, cfg.RateLimit.InactiveTTL)
	tracker := ratelimit.NewTracker(60)

	fixValidator := validation.NewFixValidator(validation.Rules{
		MaxSpeedKMH:     cfg.Validation.MaxSpeedKMH,
		StalenessWindow: cfg.Validation.StalenessWindow,
		MaxFutureSkew:   cfg.Validation.MaxFutureSkew,
		MaxPayloadChars: cfg.Validation.MaxPayloadChars,
	})

	coordinator := ingest.NewCoordinator(fixValidator, db, gate, tracker, hub)

	exporter, err := backup.NewExporter(&cfg.Backup, db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize backup exporter")
	}
	defer exporter.Close()
	logging.Info().Str("dir", cfg.Backup.Dir).Dur("ttl", cfg.Backup.TTL).Msg("Backup exporter initialized")

	governor := monitor.NewGovernor(&cfg.Capacity, db, exporter, hub, gate, tracker)

	handlers := api.NewHandlers(coordinator, db, exporter, governor, hub, cfg.Server.CORSOrigins)
	router := api.NewRouter(handlers)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Assemble the supervisor tree
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddStorageService(governor)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	// Signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Waypost stopped gracefully")
}
