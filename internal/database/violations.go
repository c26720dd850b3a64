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

	"github.com/viaserra/multacache/internal/logging"
	"github.com/viaserra/multacache/internal/metrics"
	"github.com/viaserra/multacache/internal/models"
)

// violationColumns is the canonical column list used by all violation
// SELECTs, matched by scanViolation.
const violationColumns = `id, reference, vehicle_code, agent_code, infraction_code,
	vehicle_plate, agent_name, infraction_detail,
	original_amount, paid_amount, corrected_amount,
	issued_at, due_at, paid_at, appeal_at,
	location, observations,
	fetched_at, last_updated_at, source_tag, is_complete, is_validated`

// UpsertViolation inserts or updates one upstream record, keyed by its
// reference. On update, only non-empty upstream fields overwrite cached
// values: the upstream source is authoritative but may return partial
// rows. Returns true when a new row was inserted.
func (db *DB) UpsertViolation(ctx context.Context, rec *models.UpstreamViolation) (bool, error) {
	start := time.Now()
	defer metrics.ObserveQuery("upsert", "violations", start)

	existing, err := db.GetViolationByReference(ctx, rec.Reference)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := db.insertViolation(ctx, rec, start); err != nil {
			metrics.DBQueryErrors.WithLabelValues("insert", "violations").Inc()
			return false, err
		}
		return true, nil
	case err != nil:
		return false, err
	}

	mergeViolation(existing, rec, start)
	if err := db.updateViolation(ctx, existing); err != nil {
		metrics.DBQueryErrors.WithLabelValues("update", "violations").Inc()
		return false, err
	}
	return false, nil
}

// GetViolationByReference returns the cached violation with the given
// notice number, or ErrNotFound.
func (db *DB) GetViolationByReference(ctx context.Context, reference string) (*models.Violation, error) {
	query := fmt.Sprintf(`SELECT %s FROM violations WHERE reference = ?`, violationColumns)

	row := db.conn.QueryRowContext(ctx, query, reference)
	v, err := scanViolation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("violation %s: %w", reference, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query violation %s: %w", reference, err)
	}
	return v, nil
}

// QueryViolations returns a page of violations matching the filter plus
// the total match count.
func (db *DB) QueryViolations(ctx context.Context, filter models.ViolationFilter, page models.Page) ([]models.Violation, int64, error) {
	start := time.Now()
	defer metrics.ObserveQuery("query", "violations", start)

	where, args := buildViolationFilter(filter)

	var total int64
	countQuery := "SELECT COUNT(*) FROM violations" + where
	if err := db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		metrics.DBQueryErrors.WithLabelValues("query", "violations").Inc()
		return nil, 0, fmt.Errorf("failed to count violations: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM violations%s ORDER BY %s %s LIMIT ? OFFSET ?",
		violationColumns, where, orderColumn(page.OrderBy), orderDirection(page.Direction))
	args = append(args, page.Limit, page.Offset())

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("query", "violations").Inc()
		return nil, 0, fmt.Errorf("failed to query violations: %w", err)
	}
	defer closeRows(rows)

	violations := make([]models.Violation, 0, page.Limit)
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan violation: %w", err)
		}
		violations = append(violations, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("violation row iteration failed: %w", err)
	}

	return violations, total, nil
}

// CountViolations returns the total number of cached violations.
func (db *DB) CountViolations(ctx context.Context) (int64, error) {
	var count int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM violations").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count violations: %w", err)
	}
	return count, nil
}

// DeleteViolationsBefore removes cached rows issued before the cutoff.
// This is the retention sweep; dimension rows are kept.
func (db *DB) DeleteViolationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	defer metrics.ObserveQuery("delete", "violations", start)

	res, err := db.conn.ExecContext(ctx, "DELETE FROM violations WHERE issued_at < ?", cutoff)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("delete", "violations").Inc()
		return 0, fmt.Errorf("failed to delete violations before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return deleted, nil
}

// insertViolation creates a new cache row from an upstream record.
func (db *DB) insertViolation(ctx context.Context, rec *models.UpstreamViolation, fetchedAt time.Time) error {
	query := `INSERT INTO violations (
		reference, vehicle_code, agent_code, infraction_code,
		vehicle_plate, agent_name, infraction_detail,
		original_amount, paid_amount, corrected_amount,
		issued_at, due_at, paid_at, appeal_at,
		location, observations,
		fetched_at, last_updated_at, source_tag, is_complete, is_validated
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		rec.Reference, rec.VehicleCode, rec.AgentCode, rec.InfractionCode,
		rec.VehiclePlate, rec.AgentName, rec.InfractionDetail,
		rec.OriginalAmount, rec.PaidAmount, rec.CorrectedAmount,
		rec.IssuedAt, rec.DueAt, rec.PaidAt, rec.AppealAt,
		rec.Location, rec.Observations,
		fetchedAt, fetchedAt, rec.SourceTag, upstreamIsComplete(rec), rec.IsValidated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert violation %s: %w", rec.Reference, err)
	}
	return nil
}

// updateViolation persists a merged cache row.
func (db *DB) updateViolation(ctx context.Context, v *models.Violation) error {
	query := `UPDATE violations SET
		vehicle_code = ?, agent_code = ?, infraction_code = ?,
		vehicle_plate = ?, agent_name = ?, infraction_detail = ?,
		original_amount = ?, paid_amount = ?, corrected_amount = ?,
		issued_at = ?, due_at = ?, paid_at = ?, appeal_at = ?,
		location = ?, observations = ?,
		fetched_at = ?, last_updated_at = ?, source_tag = ?,
		is_complete = ?, is_validated = ?
	WHERE reference = ?`

	_, err := db.conn.ExecContext(ctx, query,
		v.VehicleCode, v.AgentCode, v.InfractionCode,
		v.VehiclePlate, v.AgentName, v.InfractionDetail,
		v.OriginalAmount, v.PaidAmount, v.CorrectedAmount,
		v.IssuedAt, v.DueAt, v.PaidAt, v.AppealAt,
		v.Location, v.Observations,
		v.FetchedAt, v.LastUpdatedAt, v.SourceTag,
		v.IsComplete, v.IsValidated,
		v.Reference,
	)
	if err != nil {
		return fmt.Errorf("failed to update violation %s: %w", v.Reference, err)
	}
	return nil
}

// mergeViolation applies the non-empty-overwrites rule: upstream values
// win only where the upstream row actually carries data.
func mergeViolation(existing *models.Violation, rec *models.UpstreamViolation, fetchedAt time.Time) {
	mergeStrPtr(&existing.VehicleCode, rec.VehicleCode)
	mergeStrPtr(&existing.AgentCode, rec.AgentCode)
	mergeStrPtr(&existing.InfractionCode, rec.InfractionCode)
	mergeStrPtr(&existing.VehiclePlate, rec.VehiclePlate)
	mergeStrPtr(&existing.AgentName, rec.AgentName)
	mergeStrPtr(&existing.InfractionDetail, rec.InfractionDetail)

	if rec.OriginalAmount != 0 {
		existing.OriginalAmount = rec.OriginalAmount
	}
	if rec.PaidAmount != nil {
		existing.PaidAmount = rec.PaidAmount
	}
	if rec.CorrectedAmount != nil {
		existing.CorrectedAmount = rec.CorrectedAmount
	}

	if !rec.IssuedAt.IsZero() {
		existing.IssuedAt = rec.IssuedAt
	}
	mergeTimePtr(&existing.DueAt, rec.DueAt)
	mergeTimePtr(&existing.PaidAt, rec.PaidAt)
	mergeTimePtr(&existing.AppealAt, rec.AppealAt)

	if rec.Location != "" {
		existing.Location = rec.Location
	}
	if rec.Observations != "" {
		existing.Observations = rec.Observations
	}
	if rec.SourceTag != "" {
		existing.SourceTag = rec.SourceTag
	}
	if rec.IsValidated {
		existing.IsValidated = true
	}

	existing.FetchedAt = fetchedAt
	existing.LastUpdatedAt = fetchedAt
	existing.IsComplete = violationIsComplete(existing)
}

// mergeStrPtr overwrites dst when src carries a non-empty value.
func mergeStrPtr(dst **string, src *string) {
	if src != nil && *src != "" {
		*dst = src
	}
}

// mergeTimePtr overwrites dst when src carries a non-zero time.
func mergeTimePtr(dst **time.Time, src *time.Time) {
	if src != nil && !src.IsZero() {
		*dst = src
	}
}

// upstreamIsComplete reports whether an upstream row carries every
// dimension code. Incomplete rows are cached but flagged so a later,
// fuller row can complete them.
func upstreamIsComplete(rec *models.UpstreamViolation) bool {
	return hasValue(rec.VehicleCode) && hasValue(rec.AgentCode) && hasValue(rec.InfractionCode)
}

// violationIsComplete is the cached-row equivalent of upstreamIsComplete.
func violationIsComplete(v *models.Violation) bool {
	return hasValue(v.VehicleCode) && hasValue(v.AgentCode) && hasValue(v.InfractionCode)
}

func hasValue(s *string) bool {
	return s != nil && *s != ""
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanViolation.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanViolation reads one row in violationColumns order.
func scanViolation(row rowScanner) (*models.Violation, error) {
	var v models.Violation
	err := row.Scan(
		&v.ID, &v.Reference, &v.VehicleCode, &v.AgentCode, &v.InfractionCode,
		&v.VehiclePlate, &v.AgentName, &v.InfractionDetail,
		&v.OriginalAmount, &v.PaidAmount, &v.CorrectedAmount,
		&v.IssuedAt, &v.DueAt, &v.PaidAt, &v.AppealAt,
		&v.Location, &v.Observations,
		&v.FetchedAt, &v.LastUpdatedAt, &v.SourceTag, &v.IsComplete, &v.IsValidated,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// closeRows closes rows, logging on failure. Used via defer where the
// enclosing function already returns an error.
func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close result rows")
	}
}
