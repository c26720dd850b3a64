// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/viaserra/multacache/internal/logging"
)

// DuckDBStore implements Store on the same DuckDB database that holds
// the violation cache, so audit events survive restarts.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed audit store. Call CreateTable
// before first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the sync_audit_events table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sync_audit_events (
			id TEXT PRIMARY KEY,
			operation_id TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			operation TEXT NOT NULL,
			phase TEXT NOT NULL,
			outcome TEXT NOT NULL,
			metadata JSON,
			error TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON sync_audit_events(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_operation_id ON sync_audit_events(operation_id);
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute audit schema statement: %w", err)
		}
	}

	logging.Debug().Msg("Audit events table created/verified")
	return nil
}

// Save persists an audit event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	metadata := sql.NullString{}
	if len(event.Metadata) > 0 {
		metadata = sql.NullString{String: string(event.Metadata), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_audit_events (id, operation_id, timestamp, operation, phase, outcome, metadata, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.OperationID, event.Timestamp, event.Operation,
		string(event.Phase), string(event.Outcome), metadata, event.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *DuckDBStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation_id, timestamp, operation, phase, outcome, metadata::VARCHAR, error
		FROM sync_audit_events
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close audit rows")
		}
	}()

	var events []Event
	for rows.Next() {
		var (
			event    Event
			ts       time.Time
			phase    string
			outcome  string
			metadata sql.NullString
			errMsg   sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.OperationID, &ts, &event.Operation, &phase, &outcome, &metadata, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Timestamp = ts
		event.Phase = Phase(phase)
		event.Outcome = Outcome(outcome)
		if metadata.Valid {
			event.Metadata = []byte(metadata.String)
		}
		event.Error = errMsg.String
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}
