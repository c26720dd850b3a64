// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package sync

import (
	"context"
	"fmt"
	"sort"
	stdsync "sync"
	"time"

	"github.com/viaserra/multacache/internal/models"
	"github.com/viaserra/multacache/internal/upstream"
)

// fakeStore is an in-memory stand-in for the cache store, implementing
// every store slice the engine consumes.
type fakeStore struct {
	mu      stdsync.Mutex
	records map[string]models.UpstreamViolation

	// failRefs makes UpsertViolation fail for specific references.
	failRefs map[string]bool

	syncRuns      []models.SyncRun
	nextRunID     int64
	dailyDays     []time.Time
	deletedBefore []time.Time

	dimensions map[string][]models.DimensionTuple // keyed by dimension name
	dimUpserts map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:    make(map[string]models.UpstreamViolation),
		failRefs:   make(map[string]bool),
		dimensions: make(map[string][]models.DimensionTuple),
		dimUpserts: make(map[string]int),
	}
}

func (s *fakeStore) UpsertViolation(_ context.Context, rec *models.UpstreamViolation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRefs[rec.Reference] {
		return false, fmt.Errorf("simulated store failure for %s", rec.Reference)
	}

	_, exists := s.records[rec.Reference]
	s.records[rec.Reference] = *rec
	return !exists, nil
}

func (s *fakeStore) QueryViolations(_ context.Context, _ models.ViolationFilter, page models.Page) ([]models.Violation, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := make([]string, 0, len(s.records))
	for ref := range s.records {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	rows := make([]models.Violation, 0, len(refs))
	for _, ref := range refs {
		rec := s.records[ref]
		rows = append(rows, models.Violation{
			Reference:      rec.Reference,
			OriginalAmount: rec.OriginalAmount,
			IssuedAt:       rec.IssuedAt,
		})
	}
	return rows, int64(len(rows)), nil
}

func (s *fakeStore) CountViolations(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.records)), nil
}

func (s *fakeStore) DistinctAgents(_ context.Context) ([]models.DimensionTuple, error) {
	return s.dimensions["agents"], nil
}

func (s *fakeStore) DistinctVehicles(_ context.Context) ([]models.DimensionTuple, error) {
	return s.dimensions["vehicles"], nil
}

func (s *fakeStore) DistinctInfractions(_ context.Context) ([]models.DimensionTuple, error) {
	return s.dimensions["infractions"], nil
}

func (s *fakeStore) upsertDim(name string, tuple models.DimensionTuple) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimUpserts[name]++
	return true, nil
}

func (s *fakeStore) UpsertAgent(_ context.Context, tuple models.DimensionTuple, _ time.Time) (bool, error) {
	return s.upsertDim("agents", tuple)
}

func (s *fakeStore) UpsertVehicle(_ context.Context, tuple models.DimensionTuple, _ time.Time) (bool, error) {
	return s.upsertDim("vehicles", tuple)
}

func (s *fakeStore) UpsertInfractionType(_ context.Context, tuple models.DimensionTuple, _ time.Time) (bool, error) {
	return s.upsertDim("infractions", tuple)
}

func (s *fakeStore) CreateSyncRun(_ context.Context, trigger models.SyncTrigger, startedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunID++
	s.syncRuns = append(s.syncRuns, models.SyncRun{
		ID:        s.nextRunID,
		Trigger:   trigger,
		Status:    models.SyncRunRunning,
		StartedAt: startedAt,
	})
	return s.nextRunID, nil
}

func (s *fakeStore) FinishSyncRun(_ context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.syncRuns {
		if s.syncRuns[i].ID == run.ID {
			s.syncRuns[i] = *run
			return nil
		}
	}
	return fmt.Errorf("sync run %d not found", run.ID)
}

func (s *fakeStore) ReplaceDailyStat(_ context.Context, day time.Time) (models.DailyStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyDays = append(s.dailyDays, day)
	return models.DailyStat{Day: day}, nil
}

func (s *fakeStore) DeleteViolationsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedBefore = append(s.deletedBefore, cutoff)
	return 0, nil
}

func (s *fakeStore) lastRun() models.SyncRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncRuns[len(s.syncRuns)-1]
}

func (s *fakeStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeStore) amountOf(ref string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[ref].OriginalAmount
}

// fakeSource serves pages from a flat record slice. Setting err makes
// every Fetch fail. blockCh, when set, makes Fetch wait until the
// channel is closed.
type fakeSource struct {
	mu      stdsync.Mutex
	rows    []models.UpstreamViolation
	err     error
	blockCh chan struct{}
	fetches int
}

func (f *fakeSource) Fetch(ctx context.Context, query upstream.FetchQuery) ([]models.UpstreamViolation, error) {
	f.mu.Lock()
	f.fetches++
	block := f.blockCh
	err := f.err
	rows := f.rows
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	if query.Offset >= len(rows) {
		return nil, nil
	}
	end := query.Offset + query.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[query.Offset:end], nil
}

func (f *fakeSource) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeSource) setError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// steppedClock is a manually advanced clock for deterministic watermark
// tests.
type steppedClock struct {
	mu stdsync.Mutex
	t  time.Time
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *steppedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// sinceSource serves records filtered by the query's Since bound, the
// way the real upstream endpoint does. Each Fetch advances the attached
// clock by fetchDelay, simulating a slow upstream page.
type sinceSource struct {
	mu         stdsync.Mutex
	rows       []timedRecord
	clock      *steppedClock
	fetchDelay time.Duration
}

type timedRecord struct {
	rec       models.UpstreamViolation
	changedAt time.Time
}

func (s *sinceSource) add(rec models.UpstreamViolation, changedAt time.Time) {
	s.mu.Lock()
	s.rows = append(s.rows, timedRecord{rec: rec, changedAt: changedAt})
	s.mu.Unlock()
}

func (s *sinceSource) Fetch(_ context.Context, query upstream.FetchQuery) ([]models.UpstreamViolation, error) {
	if s.clock != nil && s.fetchDelay > 0 {
		s.clock.Advance(s.fetchDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.UpstreamViolation
	for _, tr := range s.rows {
		if query.Since.IsZero() || !tr.changedAt.Before(query.Since) {
			matched = append(matched, tr.rec)
		}
	}

	if query.Offset >= len(matched) {
		return nil, nil
	}
	end := query.Offset + query.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[query.Offset:end], nil
}

func (s *sinceSource) Ping(context.Context) error { return nil }

// fakeTrail records audit calls.
type fakeTrail struct {
	mu       stdsync.Mutex
	started  []string
	finished []string // outcomes
}

func (t *fakeTrail) Start(_ context.Context, operation string, _ map[string]any) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = append(t.started, operation)
	return fmt.Sprintf("audit-%d", len(t.started))
}

func (t *fakeTrail) Finish(_ context.Context, _ string, outcome string, _ map[string]any, _ error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finished = append(t.finished, outcome)
}

func sourceRecord(ref string, amount float64) models.UpstreamViolation {
	return models.UpstreamViolation{
		Reference:      ref,
		OriginalAmount: amount,
		IssuedAt:       time.Date(2026, 5, 12, 14, 30, 0, 0, time.UTC),
		Location:       "Av. Paulista, 1000",
	}
}

func sourceRecords(n int) []models.UpstreamViolation {
	rows := make([]models.UpstreamViolation, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, sourceRecord(fmt.Sprintf("AIT-%03d", i), float64(50+i)))
	}
	return rows
}
