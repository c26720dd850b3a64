// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package sync

import (
	"context"
	"testing"

	"github.com/viaserra/multacache/internal/models"
)

func TestReconcileAll(t *testing.T) {
	store := newFakeStore()
	store.dimensions["agents"] = []models.DimensionTuple{
		{Code: "AG-17", Detail: "J. Souza"},
		{Code: "AG-23", Detail: "M. Lima"},
	}
	store.dimensions["vehicles"] = []models.DimensionTuple{
		{Code: "V-001", Detail: "ABC-1234"},
	}
	store.dimensions["infractions"] = []models.DimensionTuple{
		{Code: "74550", Detail: "Excesso de velocidade"},
		{Code: "55411", Detail: "Estacionamento proibido"},
		{Code: "60501", Detail: "Avanço de sinal"},
	}

	result := NewReconciler(store).ReconcileAll(context.Background())

	if result.Agents.Processed != 2 {
		t.Errorf("agents processed = %d, want 2", result.Agents.Processed)
	}
	if result.Vehicles.Processed != 1 {
		t.Errorf("vehicles processed = %d, want 1", result.Vehicles.Processed)
	}
	if result.Infractions.Processed != 3 {
		t.Errorf("infractions processed = %d, want 3", result.Infractions.Processed)
	}
	if store.dimUpserts["agents"] != 2 || store.dimUpserts["vehicles"] != 1 || store.dimUpserts["infractions"] != 3 {
		t.Errorf("dimension upserts = %v, want 2/1/3", store.dimUpserts)
	}
}

func TestReconcileEmptyCache(t *testing.T) {
	result := NewReconciler(newFakeStore()).ReconcileAll(context.Background())

	total := result.Agents.Processed + result.Vehicles.Processed + result.Infractions.Processed
	if total != 0 {
		t.Errorf("reconciled %d rows from an empty cache, want 0", total)
	}
}
