// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/viaserra/multacache/internal/config"
	"github.com/viaserra/multacache/internal/middleware"
)

// NewRouter wires the handler set into a chi router with the global
// middleware stack.
func NewRouter(handler *Handler, cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.RequestLogging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitReqs > 0 {
			r.Use(httprate.Limit(
				cfg.RateLimitReqs,
				cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}

		r.Get("/health", handler.Health)
		r.Get("/violations", handler.Violations)
		r.Post("/sync", handler.TriggerSync)
		r.Get("/sync/status", handler.SyncStatus)
		r.Get("/sync/runs", handler.SyncRuns)
		r.Get("/stats/daily", handler.DailyStats)
		r.Get("/dimensions", handler.Dimensions)
		r.Get("/cache/info", handler.CacheInfo)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
