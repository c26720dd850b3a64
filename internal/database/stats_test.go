// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package database

import (
	"context"
	"testing"
	"time"

	"github.com/viaserra/multacache/internal/models"
)

func TestReplaceDailyStat_ComputesFromCache(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	day := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)

	// Two violations on the day, one paid; one violation on another day.
	a := testUpstreamViolation("AIT-200", day.Add(10*time.Hour))
	a.OriginalAmount = 100
	b := testUpstreamViolation("AIT-201", day.Add(15*time.Hour))
	b.OriginalAmount = 50
	b.PaidAmount = floatPtr(55)
	b.PaidAt = timePtr(day.AddDate(0, 0, 3))
	c := testUpstreamViolation("AIT-202", day.AddDate(0, 0, 1))

	for _, rec := range []*models.UpstreamViolation{a, b, c} {
		if _, err := db.UpsertViolation(ctx, rec); err != nil {
			t.Fatalf("seed upsert failed: %v", err)
		}
	}

	stat, err := db.ReplaceDailyStat(ctx, day)
	if err != nil {
		t.Fatalf("ReplaceDailyStat failed: %v", err)
	}
	if stat.ViolationCount != 2 {
		t.Errorf("violation_count=%d, want 2", stat.ViolationCount)
	}
	if stat.TotalAmount != 150 {
		t.Errorf("total_amount=%v, want 150", stat.TotalAmount)
	}
	if stat.PaidCount != 1 {
		t.Errorf("paid_count=%d, want 1", stat.PaidCount)
	}
	if stat.PaidAmount != 55 {
		t.Errorf("paid_amount=%v, want 55", stat.PaidAmount)
	}
}

func TestReplaceDailyStat_RepeatedRecomputationIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	day := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	if _, err := db.UpsertViolation(ctx, testUpstreamViolation("AIT-210", day.Add(9*time.Hour))); err != nil {
		t.Fatalf("seed upsert failed: %v", err)
	}

	first, err := db.ReplaceDailyStat(ctx, day)
	if err != nil {
		t.Fatalf("first recomputation failed: %v", err)
	}
	second, err := db.ReplaceDailyStat(ctx, day)
	if err != nil {
		t.Fatalf("second recomputation failed: %v", err)
	}

	// Replace semantics: counts never accumulate across recomputations.
	if second.ViolationCount != first.ViolationCount || second.TotalAmount != first.TotalAmount {
		t.Errorf("recomputation changed values: first=%+v second=%+v", first, second)
	}

	stats, err := db.GetDailyStats(ctx, day, day)
	if err != nil {
		t.Fatalf("GetDailyStats failed: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected exactly one row per day, got %d", len(stats))
	}
	if stats[0].ViolationCount != 1 {
		t.Errorf("stored violation_count=%d, want 1", stats[0].ViolationCount)
	}
}

func TestGetDailyStats_Range(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		day := base.AddDate(0, 0, i)
		if _, err := db.UpsertViolation(ctx, testUpstreamViolation(refN(300+i), day.Add(time.Hour))); err != nil {
			t.Fatalf("seed upsert failed: %v", err)
		}
		if _, err := db.ReplaceDailyStat(ctx, day); err != nil {
			t.Fatalf("ReplaceDailyStat failed: %v", err)
		}
	}

	stats, err := db.GetDailyStats(ctx, base.AddDate(0, 0, 2), base.AddDate(0, 0, 4))
	if err != nil {
		t.Fatalf("GetDailyStats failed: %v", err)
	}
	if len(stats) != 3 {
		t.Errorf("range returned %d rows, want 3", len(stats))
	}
}
