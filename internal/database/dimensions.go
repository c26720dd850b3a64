// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/viaserra/multacache/internal/metrics"
	"github.com/viaserra/multacache/internal/models"
)

// Dimension projections. Each query selects the distinct codes present
// in the violations table together with the most recent detail value
// seen for that code (arg_max over last_updated_at). The upstream source
// is never consulted here.

// DistinctAgents projects distinct agent tuples from the cache.
func (db *DB) DistinctAgents(ctx context.Context) ([]models.DimensionTuple, error) {
	return db.distinctTuples(ctx, "agent_code", "agent_name")
}

// DistinctVehicles projects distinct vehicle tuples from the cache.
func (db *DB) DistinctVehicles(ctx context.Context) ([]models.DimensionTuple, error) {
	return db.distinctTuples(ctx, "vehicle_code", "vehicle_plate")
}

// DistinctInfractions projects distinct infraction tuples from the cache.
func (db *DB) DistinctInfractions(ctx context.Context) ([]models.DimensionTuple, error) {
	return db.distinctTuples(ctx, "infraction_code", "infraction_detail")
}

// distinctTuples runs the shared distinct-projection query for one
// dimension. codeCol and detailCol come from a fixed caller-side set,
// never from user input.
func (db *DB) distinctTuples(ctx context.Context, codeCol, detailCol string) ([]models.DimensionTuple, error) {
	start := time.Now()
	defer metrics.ObserveQuery("project", "violations", start)

	query := fmt.Sprintf(`SELECT %[1]s, COALESCE(arg_max(%[2]s, last_updated_at), '')
		FROM violations
		WHERE %[1]s IS NOT NULL AND %[1]s <> ''
		GROUP BY %[1]s
		ORDER BY %[1]s`, codeCol, detailCol)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("project", "violations").Inc()
		return nil, fmt.Errorf("failed to project %s: %w", codeCol, err)
	}
	defer closeRows(rows)

	var tuples []models.DimensionTuple
	for rows.Next() {
		var t models.DimensionTuple
		var detail *string
		if err := rows.Scan(&t.Code, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan %s tuple: %w", codeCol, err)
		}
		if detail != nil {
			t.Detail = *detail
		}
		tuples = append(tuples, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s projection iteration failed: %w", codeCol, err)
	}
	return tuples, nil
}

// UpsertAgent inserts or refreshes one agent dimension row. Returns true
// when the row was newly inserted.
func (db *DB) UpsertAgent(ctx context.Context, tuple models.DimensionTuple, seenAt time.Time) (bool, error) {
	return db.upsertDimension(ctx, "agents", "name", tuple, seenAt)
}

// UpsertVehicle inserts or refreshes one vehicle dimension row.
func (db *DB) UpsertVehicle(ctx context.Context, tuple models.DimensionTuple, seenAt time.Time) (bool, error) {
	return db.upsertDimension(ctx, "vehicles", "plate", tuple, seenAt)
}

// UpsertInfractionType inserts or refreshes one infraction dimension row.
func (db *DB) UpsertInfractionType(ctx context.Context, tuple models.DimensionTuple, seenAt time.Time) (bool, error) {
	return db.upsertDimension(ctx, "infraction_types", "description", tuple, seenAt)
}

// upsertDimension applies the insert-or-update-by-natural-key rule with
// the same non-empty-overwrites merge used for violations. Dimension
// rows are never deleted.
func (db *DB) upsertDimension(ctx context.Context, table, detailCol string, tuple models.DimensionTuple, seenAt time.Time) (bool, error) {
	start := time.Now()
	defer metrics.ObserveQuery("upsert", table, start)

	if tuple.Code == "" {
		return false, fmt.Errorf("dimension code must not be empty")
	}

	var exists bool
	existsQuery := fmt.Sprintf("SELECT COUNT(*) > 0 FROM %s WHERE code = ?", table)
	if err := db.conn.QueryRowContext(ctx, existsQuery, tuple.Code).Scan(&exists); err != nil {
		metrics.DBQueryErrors.WithLabelValues("upsert", table).Inc()
		return false, fmt.Errorf("failed to check %s %s: %w", table, tuple.Code, err)
	}

	if !exists {
		insert := fmt.Sprintf("INSERT INTO %s (code, %s, first_seen, last_seen) VALUES (?, ?, ?, ?)",
			table, detailCol)
		if _, err := db.conn.ExecContext(ctx, insert, tuple.Code, tuple.Detail, seenAt, seenAt); err != nil {
			metrics.DBQueryErrors.WithLabelValues("upsert", table).Inc()
			return false, fmt.Errorf("failed to insert %s %s: %w", table, tuple.Code, err)
		}
		return true, nil
	}

	update := fmt.Sprintf(`UPDATE %[1]s SET
		%[2]s = CASE WHEN ? <> '' THEN ? ELSE %[2]s END,
		last_seen = ?
	WHERE code = ?`, table, detailCol)
	if _, err := db.conn.ExecContext(ctx, update, tuple.Detail, tuple.Detail, seenAt, tuple.Code); err != nil {
		metrics.DBQueryErrors.WithLabelValues("upsert", table).Inc()
		return false, fmt.Errorf("failed to update %s %s: %w", table, tuple.Code, err)
	}
	return false, nil
}

// dimensionRow is the shared shape of the three dimension tables.
type dimensionRow struct {
	code      string
	detail    string
	firstSeen time.Time
	lastSeen  time.Time
}

// listDimension reads all rows of one dimension table, ordered by code.
// table and detailCol come from a fixed caller-side set.
func (db *DB) listDimension(ctx context.Context, table, detailCol string) ([]dimensionRow, error) {
	start := time.Now()
	defer metrics.ObserveQuery("list", table, start)

	query := fmt.Sprintf("SELECT code, COALESCE(%s, ''), first_seen, last_seen FROM %s ORDER BY code",
		detailCol, table)
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("list", table).Inc()
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer closeRows(rows)

	var out []dimensionRow
	for rows.Next() {
		var r dimensionRow
		if err := rows.Scan(&r.code, &r.detail, &r.firstSeen, &r.lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s iteration failed: %w", table, err)
	}
	return out, nil
}

// ListAgents returns the agent dimension, ordered by code.
func (db *DB) ListAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := db.listDimension(ctx, "agents", "name")
	if err != nil {
		return nil, err
	}
	agents := make([]models.Agent, len(rows))
	for i, r := range rows {
		agents[i] = models.Agent{Code: r.code, Name: r.detail, FirstSeen: r.firstSeen, LastSeen: r.lastSeen}
	}
	return agents, nil
}

// ListVehicles returns the vehicle dimension, ordered by code.
func (db *DB) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	rows, err := db.listDimension(ctx, "vehicles", "plate")
	if err != nil {
		return nil, err
	}
	vehicles := make([]models.Vehicle, len(rows))
	for i, r := range rows {
		vehicles[i] = models.Vehicle{Code: r.code, Plate: r.detail, FirstSeen: r.firstSeen, LastSeen: r.lastSeen}
	}
	return vehicles, nil
}

// ListInfractionTypes returns the infraction-code dimension, ordered by
// code.
func (db *DB) ListInfractionTypes(ctx context.Context) ([]models.InfractionType, error) {
	rows, err := db.listDimension(ctx, "infraction_types", "description")
	if err != nil {
		return nil, err
	}
	infractions := make([]models.InfractionType, len(rows))
	for i, r := range rows {
		infractions[i] = models.InfractionType{Code: r.code, Description: r.detail, FirstSeen: r.firstSeen, LastSeen: r.lastSeen}
	}
	return infractions, nil
}

// CountDimension returns the row count of one dimension table.
func (db *DB) CountDimension(ctx context.Context, table string) (int64, error) {
	switch table {
	case "agents", "vehicles", "infraction_types":
	default:
		return 0, fmt.Errorf("unknown dimension table %q", table)
	}
	var count int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}
