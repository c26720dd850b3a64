// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package sync

import (
	"context"
	"time"

	"github.com/viaserra/multacache/internal/logging"
	"github.com/viaserra/multacache/internal/metrics"
	"github.com/viaserra/multacache/internal/models"
)

// DimensionStore is the slice of the cache store the reconciler uses:
// distinct projections over cached violations and dimension upserts.
type DimensionStore interface {
	DistinctAgents(ctx context.Context) ([]models.DimensionTuple, error)
	DistinctVehicles(ctx context.Context) ([]models.DimensionTuple, error)
	DistinctInfractions(ctx context.Context) ([]models.DimensionTuple, error)
	UpsertAgent(ctx context.Context, tuple models.DimensionTuple, seenAt time.Time) (bool, error)
	UpsertVehicle(ctx context.Context, tuple models.DimensionTuple, seenAt time.Time) (bool, error)
	UpsertInfractionType(ctx context.Context, tuple models.DimensionTuple, seenAt time.Time) (bool, error)
}

// Reconciler rebuilds the dimension tables from the cached violation
// records. It never talks to the upstream source: the cache is the only
// input, so reconciliation works offline. Each row is upserted
// independently; a failing row is counted and the rest proceed.
type Reconciler struct {
	store DimensionStore
	now   func() time.Time
}

// NewReconciler creates a reconciler over store.
func NewReconciler(store DimensionStore) *Reconciler {
	return &Reconciler{
		store: store,
		now:   time.Now,
	}
}

// ReconcileAll reconciles every dimension and returns the per-dimension
// counters.
func (r *Reconciler) ReconcileAll(ctx context.Context) models.ReconcileResult {
	return models.ReconcileResult{
		Agents:      r.reconcile(ctx, "agents", r.store.DistinctAgents, r.store.UpsertAgent),
		Vehicles:    r.reconcile(ctx, "vehicles", r.store.DistinctVehicles, r.store.UpsertVehicle),
		Infractions: r.reconcile(ctx, "infractions", r.store.DistinctInfractions, r.store.UpsertInfractionType),
	}
}

func (r *Reconciler) reconcile(
	ctx context.Context,
	dimension string,
	project func(context.Context) ([]models.DimensionTuple, error),
	upsert func(context.Context, models.DimensionTuple, time.Time) (bool, error),
) models.BatchResult {
	var result models.BatchResult

	tuples, err := project(ctx)
	if err != nil {
		logging.Error().Err(err).Str("dimension", dimension).Msg("Dimension projection failed")
		return result
	}

	seenAt := r.now()
	for _, tuple := range tuples {
		result.Processed++

		inserted, err := upsert(ctx, tuple, seenAt)
		if err != nil {
			result.Failed++
			logging.Warn().Err(err).Str("dimension", dimension).Str("code", tuple.Code).Msg("Dimension upsert failed")
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	metrics.DimensionRows.WithLabelValues(dimension, "inserted").Add(float64(result.Inserted))
	metrics.DimensionRows.WithLabelValues(dimension, "updated").Add(float64(result.Updated))
	metrics.DimensionRows.WithLabelValues(dimension, "failed").Add(float64(result.Failed))

	logging.Debug().
		Str("dimension", dimension).
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Msg("Dimension reconciled")

	return result
}
