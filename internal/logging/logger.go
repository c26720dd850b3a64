// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

// Package logging provides centralized zerolog-based logging for Multacache.
//
// All packages log through the package-level helpers so that output format,
// level and destination are configured in exactly one place:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("component", "sync").Msg("Sync started")
//
// Always terminate log chains with .Msg() or .Send(); an unterminated chain
// is silently dropped by zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string

	// Format is the output format: json or console.
	Format string

	// Caller includes caller file and line number in logs.
	Caller bool

	// Timestamp enables timestamps in log output.
	Timestamp bool

	// Output is the writer for log output. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Output:    os.Stderr,
	}
}

var (
	root   zerolog.Logger
	rootMu sync.RWMutex
)

//nolint:gochecknoinits // logging must work before explicit Init() runs
func init() {
	root = build(DefaultConfig())
}

// Init configures the global logger. Safe to call multiple times;
// each call replaces the previous configuration.
func Init(cfg Config) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = build(cfg)
}

func build(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = cfg.Output
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// parseLevel maps a config string to a zerolog level. Unknown strings
// fall back to info rather than failing startup.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func get() zerolog.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// Logger returns the global logger instance.
func Logger() zerolog.Logger { return get() }

// With creates a child logger context with additional default fields.
//
//	syncLogger := logging.With().Str("component", "sync").Logger()
func With() zerolog.Context {
	l := get()
	return l.With()
}

// Debug starts a debug-level message.
func Debug() *zerolog.Event {
	l := get()
	return l.Debug()
}

// Info starts an info-level message.
func Info() *zerolog.Event {
	l := get()
	return l.Info()
}

// Warn starts a warn-level message.
func Warn() *zerolog.Event {
	l := get()
	return l.Warn()
}

// Error starts an error-level message.
func Error() *zerolog.Event {
	l := get()
	return l.Error()
}

// Fatal starts a fatal-level message. os.Exit(1) follows the write.
func Fatal() *zerolog.Event {
	l := get()
	return l.Fatal()
}

// NewTestLogger creates a logger that writes to the provided writer,
// useful for capturing output in tests.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
