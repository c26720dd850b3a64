// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/viaserra/multacache/internal/logging"
	"github.com/viaserra/multacache/internal/metrics"
	"github.com/viaserra/multacache/internal/models"
)

// defaultChunkSize bounds each upsert chunk when the configured size is
// missing or invalid.
const defaultChunkSize = 100

// ViolationStore is the slice of the cache store the upserter writes to.
type ViolationStore interface {
	UpsertViolation(ctx context.Context, rec *models.UpstreamViolation) (inserted bool, err error)
}

// BatchUpserter applies upstream record batches to the cache in fixed
// chunks. Records are validated and upserted one at a time: a failing
// record is counted and logged with its reference, and processing
// continues with the next record. Apply never returns an error.
type BatchUpserter struct {
	store     ViolationStore
	chunkSize int
}

// NewBatchUpserter creates a batch upserter writing to store.
func NewBatchUpserter(store ViolationStore, chunkSize int) *BatchUpserter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &BatchUpserter{
		store:     store,
		chunkSize: chunkSize,
	}
}

// Apply upserts all records and returns the accumulated counters.
func (u *BatchUpserter) Apply(ctx context.Context, records []models.UpstreamViolation) models.BatchResult {
	var result models.BatchResult

	for start := 0; start < len(records); start += u.chunkSize {
		end := start + u.chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := result.Failed // failures before this chunk, for the log line
		result.Add(u.applyChunk(ctx, records[start:end]))
		if result.Failed > chunk {
			logging.Debug().
				Int("chunk_start", start).
				Int("chunk_failed", result.Failed-chunk).
				Msg("Chunk completed with record failures")
		}
	}

	metrics.SyncRecords.WithLabelValues("inserted").Add(float64(result.Inserted))
	metrics.SyncRecords.WithLabelValues("updated").Add(float64(result.Updated))
	metrics.SyncRecords.WithLabelValues("failed").Add(float64(result.Failed))

	return result
}

func (u *BatchUpserter) applyChunk(ctx context.Context, records []models.UpstreamViolation) models.BatchResult {
	var result models.BatchResult

	for i := range records {
		rec := &records[i]
		result.Processed++

		if err := validateRecord(rec); err != nil {
			result.Failed++
			logging.Warn().Err(err).Str("reference", rec.Reference).Msg("Skipping invalid upstream record")
			continue
		}

		inserted, err := u.store.UpsertViolation(ctx, rec)
		if err != nil {
			result.Failed++
			logging.Warn().Err(err).Str("reference", rec.Reference).Msg("Failed to upsert record")
			continue
		}

		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	return result
}

// validateRecord rejects records that cannot be cached: a missing
// reference leaves no identity to upsert by, and negative amounts or a
// zero issue date indicate a corrupt upstream row.
func validateRecord(rec *models.UpstreamViolation) error {
	if rec.Reference == "" {
		return errors.New("record has no reference")
	}
	if rec.OriginalAmount < 0 {
		return fmt.Errorf("negative original amount %.2f", rec.OriginalAmount)
	}
	if rec.PaidAmount != nil && *rec.PaidAmount < 0 {
		return fmt.Errorf("negative paid amount %.2f", *rec.PaidAmount)
	}
	if rec.CorrectedAmount != nil && *rec.CorrectedAmount < 0 {
		return fmt.Errorf("negative corrected amount %.2f", *rec.CorrectedAmount)
	}
	if rec.IssuedAt.IsZero() {
		return errors.New("record has no issue date")
	}
	return nil
}
