// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/viaserra/multacache/internal/models"
)

// CreateSyncRun inserts a new running sync-run row and returns its id.
func (db *DB) CreateSyncRun(ctx context.Context, trigger models.SyncTrigger, startedAt time.Time) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO sync_runs (trigger_kind, status, started_at)
		 VALUES (?, ?, ?) RETURNING id`,
		string(trigger), string(models.SyncRunRunning), startedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create sync run: %w", err)
	}
	return id, nil
}

// FinishSyncRun stamps the terminal state and counters of a run. The row
// is never mutated again after this.
func (db *DB) FinishSyncRun(ctx context.Context, run *models.SyncRun) error {
	if run.EndedAt == nil {
		return fmt.Errorf("sync run %d: ended_at must be set before finishing", run.ID)
	}

	_, err := db.conn.ExecContext(ctx,
		`UPDATE sync_runs SET
			status = ?, ended_at = ?, error = ?,
			ingest_processed = ?, ingest_inserted = ?, ingest_updated = ?, ingest_failed = ?,
			dim_processed = ?, dim_inserted = ?, dim_updated = ?, dim_failed = ?,
			agg_processed = ?, agg_inserted = ?, agg_updated = ?, agg_failed = ?
		WHERE id = ? AND ended_at IS NULL`,
		string(run.Status), *run.EndedAt, run.Error,
		run.Ingestion.Processed, run.Ingestion.Inserted, run.Ingestion.Updated, run.Ingestion.Failed,
		run.Dimensions.Processed, run.Dimensions.Inserted, run.Dimensions.Updated, run.Dimensions.Failed,
		run.Aggregates.Processed, run.Aggregates.Inserted, run.Aggregates.Updated, run.Aggregates.Failed,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync run %d: %w", run.ID, err)
	}
	return nil
}

// GetSyncRun returns one run by id, or ErrNotFound.
func (db *DB) GetSyncRun(ctx context.Context, id int64) (*models.SyncRun, error) {
	row := db.conn.QueryRowContext(ctx, syncRunSelect+" WHERE id = ?", id)
	run, err := scanSyncRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync run %d: %w", id, err)
	}
	return run, nil
}

// GetRecentSyncRuns returns the most recent runs, newest first.
func (db *DB) GetRecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, syncRunSelect+" ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer closeRows(rows)

	var runs []models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync run iteration failed: %w", err)
	}
	return runs, nil
}

const syncRunSelect = `SELECT id, trigger_kind, status, started_at, ended_at, error,
	ingest_processed, ingest_inserted, ingest_updated, ingest_failed,
	dim_processed, dim_inserted, dim_updated, dim_failed,
	agg_processed, agg_inserted, agg_updated, agg_failed
FROM sync_runs`

// scanSyncRun reads one row in syncRunSelect column order.
func scanSyncRun(row rowScanner) (*models.SyncRun, error) {
	var run models.SyncRun
	var trigger, status string
	err := row.Scan(
		&run.ID, &trigger, &status, &run.StartedAt, &run.EndedAt, &run.Error,
		&run.Ingestion.Processed, &run.Ingestion.Inserted, &run.Ingestion.Updated, &run.Ingestion.Failed,
		&run.Dimensions.Processed, &run.Dimensions.Inserted, &run.Dimensions.Updated, &run.Dimensions.Failed,
		&run.Aggregates.Processed, &run.Aggregates.Inserted, &run.Aggregates.Updated, &run.Aggregates.Failed,
	)
	if err != nil {
		return nil, err
	}
	run.Trigger = models.SyncTrigger(trigger)
	run.Status = models.SyncRunStatus(status)
	return &run, nil
}
