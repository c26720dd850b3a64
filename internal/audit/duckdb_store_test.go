// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

func setupDuckDBStore(t *testing.T) *DuckDBStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "audit_test.duckdb")
	db, err := sql.Open("duckdb", path)
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close duckdb: %v", err)
		}
	})

	store := NewDuckDBStore(db)
	if err := store.CreateTable(context.Background()); err != nil {
		t.Fatalf("failed to create audit table: %v", err)
	}
	return store
}

func TestDuckDBStoreSaveAndRecent(t *testing.T) {
	store := setupDuckDBStore(t)
	ctx := context.Background()

	base := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	events := []*Event{
		{ID: "ev-1", OperationID: "op-1", Timestamp: base, Operation: "full_sync", Phase: PhaseStart, Outcome: OutcomePending, Metadata: []byte(`{"trigger":"manual"}`)},
		{ID: "ev-2", OperationID: "op-1", Timestamp: base.Add(time.Minute), Operation: "full_sync", Phase: PhaseFinish, Outcome: OutcomeSucceeded},
		{ID: "ev-3", OperationID: "op-2", Timestamp: base.Add(2 * time.Minute), Operation: "full_sync", Phase: PhaseStart, Outcome: OutcomePending},
	}
	for _, ev := range events {
		if err := store.Save(ctx, ev); err != nil {
			t.Fatalf("Save(%s) failed: %v", ev.ID, err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d events, want 2", len(recent))
	}
	if recent[0].ID != "ev-3" || recent[1].ID != "ev-2" {
		t.Errorf("order = %s, %s; want ev-3, ev-2", recent[0].ID, recent[1].ID)
	}
	if recent[1].Outcome != OutcomeSucceeded {
		t.Errorf("ev-2 outcome = %q, want succeeded", recent[1].Outcome)
	}
}

func TestDuckDBStoreMetadataRoundTrip(t *testing.T) {
	store := setupDuckDBStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &Event{
		ID:          "ev-meta",
		OperationID: "op-meta",
		Timestamp:   time.Now().UTC(),
		Operation:   "full_sync",
		Phase:       PhaseFinish,
		Outcome:     OutcomeFailed,
		Metadata:    []byte(`{"ingested":42,"failed_records":1}`),
		Error:       "upstream source unavailable",
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	recent, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 {
		t.Fatal("event not returned")
	}
	if len(recent[0].Metadata) == 0 {
		t.Error("metadata not persisted")
	}
	if recent[0].Error != "upstream source unavailable" {
		t.Errorf("error = %q, want upstream message", recent[0].Error)
	}
}
