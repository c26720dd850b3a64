// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/viaserra/multacache/internal/config"
	"github.com/viaserra/multacache/internal/models"
)

// setupTestDB opens an isolated DuckDB database in a temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "test.duckdb"),
		MaxMemory: "256MB",
		Threads:   2,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }

// testUpstreamViolation builds a complete upstream record with the given
// reference, issued at the given time.
func testUpstreamViolation(reference string, issuedAt time.Time) *models.UpstreamViolation {
	return &models.UpstreamViolation{
		Reference:        reference,
		VehicleCode:      strPtr("V-001"),
		AgentCode:        strPtr("AG-17"),
		InfractionCode:   strPtr("501-00"),
		VehiclePlate:     strPtr("ABC1D23"),
		AgentName:        strPtr("DETRAN-SP"),
		InfractionDetail: strPtr("Speeding above 20% limit"),
		OriginalAmount:   195.23,
		IssuedAt:         issuedAt,
		DueAt:            timePtr(issuedAt.AddDate(0, 1, 0)),
		Location:         "Av. Paulista, 1000",
		Observations:     "radar",
		SourceTag:        "transacional",
	}
}
