// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

// Package sync implements the synchronization engine: batch ingestion
// from the upstream transactional source into the local cache, read
// strategies over the cache, dimension reconciliation, and the
// scheduled full-sync runner.
package sync

import (
	"context"
	"fmt"
	"strings"
	stdsync "sync"
	"time"

	"github.com/viaserra/multacache/internal/logging"
	"github.com/viaserra/multacache/internal/metrics"
	"github.com/viaserra/multacache/internal/models"
	"github.com/viaserra/multacache/internal/upstream"
)

// Strategy selects how a read balances cache freshness against upstream
// load.
type Strategy string

const (
	// StrategyCacheFirst serves the cache when it is fresh and
	// non-empty, otherwise refreshes from upstream first.
	StrategyCacheFirst Strategy = "CACHE_FIRST"
	// StrategyForceRefresh always refreshes from upstream before
	// reading. Upstream failure is fatal to the read.
	StrategyForceRefresh Strategy = "FORCE_REFRESH"
	// StrategySourceFirstWithFallback refreshes from upstream but
	// serves the possibly-stale cache when upstream is unavailable.
	StrategySourceFirstWithFallback Strategy = "SOURCE_FIRST_WITH_FALLBACK"
)

// ParseStrategy maps a request parameter onto a Strategy. An empty
// value defaults to CACHE_FIRST.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToUpper(strings.TrimSpace(s))) {
	case "", StrategyCacheFirst:
		return StrategyCacheFirst, nil
	case StrategyForceRefresh:
		return StrategyForceRefresh, nil
	case StrategySourceFirstWithFallback:
		return StrategySourceFirstWithFallback, nil
	default:
		return "", fmt.Errorf("unknown read strategy %q", s)
	}
}

// QueryStore is the slice of the cache store the orchestrator reads.
type QueryStore interface {
	QueryViolations(ctx context.Context, filter models.ViolationFilter, page models.Page) ([]models.Violation, int64, error)
	CountViolations(ctx context.Context) (int64, error)
}

// Orchestrator coordinates reads between the local cache and the
// upstream source. It owns the process-lifetime cache statistics; the
// counters are volatile and reset on restart.
type Orchestrator struct {
	store    QueryStore
	source   upstream.Source
	upserter *BatchUpserter
	window   time.Duration
	pageSize int

	mu    stdsync.Mutex
	stats models.CacheStats

	// now is swapped in tests to control freshness decisions.
	now func() time.Time
}

// NewOrchestrator creates an orchestrator. window is the default
// freshness window for CACHE_FIRST reads; pageSize bounds each upstream
// fetch during a refresh.
func NewOrchestrator(store QueryStore, source upstream.Source, upserter *BatchUpserter, window time.Duration, pageSize int) *Orchestrator {
	if pageSize <= 0 {
		pageSize = 10_000
	}
	return &Orchestrator{
		store:    store,
		source:   source,
		upserter: upserter,
		window:   window,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// Read executes one violation query under the given strategy. window
// overrides the configured freshness window when positive. The returned
// bool reports whether the result was served from the cache without a
// successful refresh on this call.
func (o *Orchestrator) Read(ctx context.Context, filter models.ViolationFilter, page models.Page, strategy Strategy, window time.Duration) ([]models.Violation, int64, bool, error) {
	if window <= 0 {
		window = o.window
	}

	switch strategy {
	case StrategyCacheFirst:
		return o.readCacheFirst(ctx, filter, page, window)
	case StrategyForceRefresh:
		rows, total, err := o.readForceRefresh(ctx, filter, page)
		return rows, total, false, err
	case StrategySourceFirstWithFallback:
		return o.readSourceFirst(ctx, filter, page)
	default:
		return nil, 0, false, fmt.Errorf("unknown read strategy %q", strategy)
	}
}

func (o *Orchestrator) readCacheFirst(ctx context.Context, filter models.ViolationFilter, page models.Page, window time.Duration) ([]models.Violation, int64, bool, error) {
	rows, total, err := o.store.QueryViolations(ctx, filter, page)
	if err != nil {
		return nil, 0, false, err
	}

	if o.isFresh(window) && total > 0 {
		o.recordHit()
		return rows, total, true, nil
	}

	o.recordMiss()
	rows, total, err = o.readForceRefresh(ctx, filter, page)
	return rows, total, false, err
}

func (o *Orchestrator) readForceRefresh(ctx context.Context, filter models.ViolationFilter, page models.Page) ([]models.Violation, int64, error) {
	if _, err := o.Refresh(ctx, o.lastRefreshedAt()); err != nil {
		return nil, 0, err
	}
	return o.store.QueryViolations(ctx, filter, page)
}

func (o *Orchestrator) readSourceFirst(ctx context.Context, filter models.ViolationFilter, page models.Page) ([]models.Violation, int64, bool, error) {
	if _, err := o.Refresh(ctx, o.lastRefreshedAt()); err != nil {
		logging.Warn().Err(err).Msg("Upstream unavailable, serving cached data")
		rows, total, qerr := o.store.QueryViolations(ctx, filter, page)
		return rows, total, true, qerr
	}

	rows, total, err := o.store.QueryViolations(ctx, filter, page)
	return rows, total, false, err
}

// Refresh pulls all upstream records changed since the given instant
// and applies them to the cache. A zero since fetches everything. Pages
// are fetched at the configured page size until a short page signals
// the end. On success the freshness clock is reset to the instant the
// refresh started, so records updated upstream while pages were being
// fetched fall inside the next refresh's since window.
func (o *Orchestrator) Refresh(ctx context.Context, since time.Time) (models.BatchResult, error) {
	started := o.now()

	var result models.BatchResult
	offset := 0

	for {
		rows, err := o.source.Fetch(ctx, upstream.FetchQuery{
			Since:  since,
			Offset: offset,
			Limit:  o.pageSize,
		})
		if err != nil {
			return result, fmt.Errorf("refresh aborted at offset %d: %w", offset, err)
		}

		metrics.SyncBatchSize.Observe(float64(len(rows)))
		result.Add(o.upserter.Apply(ctx, rows))

		if len(rows) < o.pageSize {
			break
		}
		offset += len(rows)
	}

	o.mu.Lock()
	o.stats.LastRefreshedAt = started
	o.mu.Unlock()

	logging.Debug().
		Int("processed", result.Processed).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Time("since", since).
		Msg("Cache refresh completed")

	return result, nil
}

// Stats returns a snapshot of the cache counters.
func (o *Orchestrator) Stats() models.CacheStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// CacheInfo builds the operator-facing cache summary.
func (o *Orchestrator) CacheInfo(ctx context.Context) (models.CacheInfo, error) {
	total, err := o.store.CountViolations(ctx)
	if err != nil {
		return models.CacheInfo{}, err
	}
	metrics.CacheRecords.Set(float64(total))

	stats := o.Stats()
	return models.CacheInfo{
		TotalRecords:    total,
		Hits:            stats.Hits,
		Misses:          stats.Misses,
		HitRate:         stats.HitRate(),
		LastRefreshedAt: stats.LastRefreshedAt,
	}, nil
}

func (o *Orchestrator) isFresh(window time.Duration) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stats.LastRefreshedAt.IsZero() {
		return false
	}
	return o.now().Sub(o.stats.LastRefreshedAt) < window
}

func (o *Orchestrator) lastRefreshedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats.LastRefreshedAt
}

func (o *Orchestrator) recordHit() {
	o.mu.Lock()
	o.stats.Hits++
	o.mu.Unlock()
	metrics.CacheHits.Inc()
}

func (o *Orchestrator) recordMiss() {
	o.mu.Lock()
	o.stats.Misses++
	o.mu.Unlock()
	metrics.CacheMisses.Inc()
}
