// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// initialize creates all tables, sequences and indexes.
func (db *DB) initialize() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range schemaQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %s: %w", query, err)
		}
	}
	return nil
}

// schemaQueries returns the schema DDL in execution order.
func schemaQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_violations_id START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_sync_runs_id START 1`,

		// Denormalized violation cache. reference is the official notice
		// number and must stay unique; re-ingestion updates in place.
		`CREATE TABLE IF NOT EXISTS violations (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_violations_id'),
			reference TEXT NOT NULL UNIQUE,
			vehicle_code TEXT,
			agent_code TEXT,
			infraction_code TEXT,
			vehicle_plate TEXT,
			agent_name TEXT,
			infraction_detail TEXT,
			original_amount DOUBLE NOT NULL DEFAULT 0,
			paid_amount DOUBLE,
			corrected_amount DOUBLE,
			issued_at TIMESTAMP NOT NULL,
			due_at TIMESTAMP,
			paid_at TIMESTAMP,
			appeal_at TIMESTAMP,
			location TEXT NOT NULL DEFAULT '',
			observations TEXT NOT NULL DEFAULT '',
			fetched_at TIMESTAMP NOT NULL,
			last_updated_at TIMESTAMP NOT NULL,
			source_tag TEXT NOT NULL DEFAULT '',
			is_complete BOOLEAN NOT NULL DEFAULT false,
			is_validated BOOLEAN NOT NULL DEFAULT false
		)`,

		// Dimension tables, projected from violations only. Rows are
		// upserted by natural code and never deleted.
		`CREATE TABLE IF NOT EXISTS agents (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vehicles (
			code TEXT PRIMARY KEY,
			plate TEXT NOT NULL DEFAULT '',
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS infraction_types (
			code TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL
		)`,

		// Audit trail of full sync runs. Rows become terminal once
		// ended_at is set.
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_sync_runs_id'),
			trigger_kind TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			error TEXT NOT NULL DEFAULT '',
			ingest_processed INTEGER NOT NULL DEFAULT 0,
			ingest_inserted INTEGER NOT NULL DEFAULT 0,
			ingest_updated INTEGER NOT NULL DEFAULT 0,
			ingest_failed INTEGER NOT NULL DEFAULT 0,
			dim_processed INTEGER NOT NULL DEFAULT 0,
			dim_inserted INTEGER NOT NULL DEFAULT 0,
			dim_updated INTEGER NOT NULL DEFAULT 0,
			dim_failed INTEGER NOT NULL DEFAULT 0,
			agg_processed INTEGER NOT NULL DEFAULT 0,
			agg_inserted INTEGER NOT NULL DEFAULT 0,
			agg_updated INTEGER NOT NULL DEFAULT 0,
			agg_failed INTEGER NOT NULL DEFAULT 0
		)`,

		// Daily aggregates, recomputed by delete-and-replace per day.
		`CREATE TABLE IF NOT EXISTS daily_stats (
			day DATE PRIMARY KEY,
			violation_count BIGINT NOT NULL,
			total_amount DOUBLE NOT NULL,
			paid_count BIGINT NOT NULL,
			paid_amount DOUBLE NOT NULL,
			computed_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_violations_issued_at ON violations(issued_at)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_agent ON violations(agent_code)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_vehicle ON violations(vehicle_code)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_infraction ON violations(infraction_code)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at)`,
	}
}
