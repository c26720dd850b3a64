// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

// Package config provides layered configuration for Multacache.
//
// Configuration is loaded via koanf with the precedence ENV > file > defaults.
// See Load in koanf.go for the loading pipeline.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/viaserra/multacache/internal/validation"
)

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Sync      SyncConfig      `koanf:"sync"`
	Retention RetentionConfig `koanf:"retention"`
	Audit     AuditConfig     `koanf:"audit"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	DefaultPageSize int           `koanf:"default_page_size" validate:"min=1"`
	MaxPageSize     int           `koanf:"max_page_size" validate:"min=1"`
}

// DatabaseConfig holds DuckDB settings for the local violation cache.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"min=0"`
}

// UpstreamConfig holds settings for the external transactional source
// that violation records are mirrored from. The source is read-only,
// slow, and may be unavailable; every call carries FetchTimeout.
type UpstreamConfig struct {
	URL          string        `koanf:"url" validate:"required"`
	APIKey       string        `koanf:"api_key"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	RateLimit    float64       `koanf:"rate_limit" validate:"min=0"`
	RateBurst    int           `koanf:"rate_burst" validate:"min=0"`
}

// SyncConfig holds synchronization engine settings.
type SyncConfig struct {
	// Interval between automatic full sync runs.
	Interval time.Duration `koanf:"interval"`
	// FreshnessWindow is the maximum cache age before a CACHE_FIRST
	// read falls through to a refresh.
	FreshnessWindow time.Duration `koanf:"freshness_window"`
	// ChunkSize bounds each upsert transaction within a batch.
	ChunkSize int `koanf:"chunk_size" validate:"min=1"`
	// PageSize bounds each upstream fetch during a full run.
	PageSize int `koanf:"page_size" validate:"min=1"`
	// AggregateWindowDays is the trailing window of daily aggregates
	// recomputed at the end of every full run.
	AggregateWindowDays int `koanf:"aggregate_window_days" validate:"min=0"`
	// RunOnStartup triggers a full sync immediately on boot.
	RunOnStartup bool `koanf:"run_on_startup"`
}

// RetentionConfig holds the time-boxed cleanup of old cache rows.
type RetentionConfig struct {
	Enabled bool          `koanf:"enabled"`
	MaxAge  time.Duration `koanf:"max_age"`
}

// AuditConfig holds sync-run audit trail settings.
type AuditConfig struct {
	// Persist writes audit events to the database in addition to memory.
	Persist bool `koanf:"persist"`
	// MaxEvents bounds the in-memory audit buffer.
	MaxEvents int `koanf:"max_events" validate:"min=1"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8480,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			DefaultPageSize: 20,
			MaxPageSize:     200,
		},
		Database: DatabaseConfig{
			Path:      "/data/multacache.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Upstream: UpstreamConfig{
			URL:          "",
			APIKey:       "",
			FetchTimeout: 30 * time.Second,
			RateLimit:    10, // requests per second against the shared source
			RateBurst:    5,
		},
		Sync: SyncConfig{
			Interval:            6 * time.Hour,
			FreshnessWindow:     5 * time.Minute,
			ChunkSize:           100,
			PageSize:            10_000,
			AggregateWindowDays: 7,
			RunOnStartup:        false,
		},
		Retention: RetentionConfig{
			Enabled: false,
			MaxAge:  5 * 365 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Persist:   true,
			MaxEvents: 10_000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %s", err.Error())
	}

	if c.Server.MaxPageSize < c.Server.DefaultPageSize {
		return fmt.Errorf("server.max_page_size (%d) must be >= server.default_page_size (%d)",
			c.Server.MaxPageSize, c.Server.DefaultPageSize)
	}

	u, err := url.Parse(c.Upstream.URL)
	if err != nil {
		return fmt.Errorf("upstream.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.url must use http or https, got %q", c.Upstream.URL)
	}

	if c.Upstream.FetchTimeout <= 0 {
		return fmt.Errorf("upstream.fetch_timeout must be positive, got %s", c.Upstream.FetchTimeout)
	}
	if c.Sync.Interval < time.Minute {
		return fmt.Errorf("sync.interval must be at least 1m, got %s", c.Sync.Interval)
	}
	if c.Sync.FreshnessWindow <= 0 {
		return fmt.Errorf("sync.freshness_window must be positive, got %s", c.Sync.FreshnessWindow)
	}
	if c.Retention.Enabled && c.Retention.MaxAge <= 0 {
		return fmt.Errorf("retention.max_age must be positive when retention is enabled")
	}

	return nil
}

// Redacted returns a copy of the config safe for logging, with the
// upstream API key masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Upstream.APIKey != "" {
		out.Upstream.APIKey = strings.Repeat("*", 8)
	}
	return out
}
