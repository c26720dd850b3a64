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

// ReplaceDailyStat recomputes the aggregate row for one calendar day
// from the cached violations and replaces any existing row for that day.
// Delete-and-recompute keeps recomputation idempotent: running it twice
// for the same day with unchanged cache contents is a no-op.
func (db *DB) ReplaceDailyStat(ctx context.Context, day time.Time) (models.DailyStat, error) {
	start := time.Now()
	defer metrics.ObserveQuery("replace", "daily_stats", start)

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	stat := models.DailyStat{Day: dayStart, ComputedAt: start.UTC()}
	query := `SELECT
		COUNT(*),
		COALESCE(SUM(original_amount), 0),
		COUNT(paid_at),
		COALESCE(SUM(CASE WHEN paid_at IS NOT NULL THEN COALESCE(paid_amount, original_amount) ELSE 0 END), 0)
	FROM violations
	WHERE issued_at >= ? AND issued_at < ?`

	err := db.conn.QueryRowContext(ctx, query, dayStart, dayEnd).
		Scan(&stat.ViolationCount, &stat.TotalAmount, &stat.PaidCount, &stat.PaidAmount)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("replace", "daily_stats").Inc()
		return models.DailyStat{}, fmt.Errorf("failed to compute daily stat for %s: %w", dayStart.Format("2006-01-02"), err)
	}

	if _, err := db.conn.ExecContext(ctx, "DELETE FROM daily_stats WHERE day = ?", dayStart); err != nil {
		metrics.DBQueryErrors.WithLabelValues("replace", "daily_stats").Inc()
		return models.DailyStat{}, fmt.Errorf("failed to clear daily stat for %s: %w", dayStart.Format("2006-01-02"), err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO daily_stats (day, violation_count, total_amount, paid_count, paid_amount, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		stat.Day, stat.ViolationCount, stat.TotalAmount, stat.PaidCount, stat.PaidAmount, stat.ComputedAt,
	)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("replace", "daily_stats").Inc()
		return models.DailyStat{}, fmt.Errorf("failed to insert daily stat for %s: %w", dayStart.Format("2006-01-02"), err)
	}

	return stat, nil
}

// GetDailyStats returns aggregate rows for days in [from, to], most
// recent first.
func (db *DB) GetDailyStats(ctx context.Context, from, to time.Time) ([]models.DailyStat, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT day, violation_count, total_amount, paid_count, paid_amount, computed_at
		 FROM daily_stats WHERE day >= ? AND day <= ? ORDER BY day DESC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer closeRows(rows)

	var stats []models.DailyStat
	for rows.Next() {
		var s models.DailyStat
		if err := rows.Scan(&s.Day, &s.ViolationCount, &s.TotalAmount, &s.PaidCount, &s.PaidAmount, &s.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("daily stat iteration failed: %w", err)
	}
	return stats, nil
}
