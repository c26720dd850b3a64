// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

// Command server runs the violation cache service: the DuckDB-backed
// local store, the scheduled sync runner against the upstream
// transactional source, and the HTTP query API, all under a suture
// supervision tree.
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

	"github.com/viaserra/multacache/internal/api"
	"github.com/viaserra/multacache/internal/audit"
	"github.com/viaserra/multacache/internal/config"
	"github.com/viaserra/multacache/internal/database"
	"github.com/viaserra/multacache/internal/logging"
	"github.com/viaserra/multacache/internal/supervisor"
	"github.com/viaserra/multacache/internal/supervisor/services"
	enginesync "github.com/viaserra/multacache/internal/sync"
	"github.com/viaserra/multacache/internal/upstream"
)

func main() {
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
		Str("upstream_url", cfg.Upstream.URL).
		Str("db_path", cfg.Database.Path).
		Dur("sync_interval", cfg.Sync.Interval).
		Msg("Starting multacache")
	logging.Debug().Interface("config", cfg.Redacted()).Msg("Effective configuration")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	source := upstream.NewBreakerClient(&cfg.Upstream)
	if err := source.Ping(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Upstream source unreachable at startup, cache will serve reads")
	} else {
		logging.Info().Msg("Connected to upstream source")
	}

	trail, err := buildAuditTrail(db, &cfg.Audit)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize audit trail")
	}

	upserter := enginesync.NewBatchUpserter(db, cfg.Sync.ChunkSize)
	orchestrator := enginesync.NewOrchestrator(db, source, upserter, cfg.Sync.FreshnessWindow, cfg.Sync.PageSize)
	reconciler := enginesync.NewReconciler(db)
	runner := enginesync.NewRunner(orchestrator, reconciler, db, trail, cfg.Sync, cfg.Retention)

	handler := api.NewHandler(orchestrator, runner, db, &cfg.Server)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, &cfg.Server),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(services.NewSyncService(runner))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

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

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	logging.Info().Msg("Stopped gracefully")
}

// buildAuditTrail selects the audit store: persistent in DuckDB when
// configured, bounded in-memory otherwise.
func buildAuditTrail(db *database.DB, cfg *config.AuditConfig) (*audit.Trail, error) {
	if cfg.Persist {
		store := audit.NewDuckDBStore(db.Conn())
		if err := store.CreateTable(context.Background()); err != nil {
			return nil, err
		}
		return audit.NewTrail(store), nil
	}
	return audit.NewTrail(audit.NewMemoryStore(cfg.MaxEvents)), nil
}
