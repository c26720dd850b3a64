// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

// Package services adapts the engine's components to suture's Serve
// pattern.
package services

import (
	"context"
)

// SyncRunner matches the sync runner lifecycle: Start spawns the
// scheduler goroutine and returns, Stop blocks until it exits.
type SyncRunner interface {
	Start(ctx context.Context)
	Stop()
}

// SyncService wraps the sync runner as a supervised service.
type SyncService struct {
	runner SyncRunner
	name   string
}

// NewSyncService creates a sync service wrapper.
func NewSyncService(runner SyncRunner) *SyncService {
	return &SyncService{
		runner: runner,
		name:   "sync-runner",
	}
}

// Serve implements suture.Service: it starts the runner, waits for
// context cancellation, and stops it. Stop waits for any run in flight.
func (s *SyncService) Serve(ctx context.Context) error {
	s.runner.Start(ctx)

	<-ctx.Done()

	s.runner.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (s *SyncService) String() string {
	return s.name
}
