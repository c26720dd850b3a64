// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/viaserra/multacache/internal/config"
	"github.com/viaserra/multacache/internal/models"
	enginesync "github.com/viaserra/multacache/internal/sync"
)

type fakeReader struct {
	rows      []models.Violation
	total     int64
	fromCache bool
	err       error

	lastFilter   models.ViolationFilter
	lastPage     models.Page
	lastStrategy enginesync.Strategy
}

func (f *fakeReader) Read(_ context.Context, filter models.ViolationFilter, page models.Page, strategy enginesync.Strategy, _ time.Duration) ([]models.Violation, int64, bool, error) {
	f.lastFilter = filter
	f.lastPage = page
	f.lastStrategy = strategy
	return f.rows, f.total, f.fromCache, f.err
}

func (f *fakeReader) CacheInfo(context.Context) (models.CacheInfo, error) {
	return models.CacheInfo{TotalRecords: f.total, Hits: 3, Misses: 1, HitRate: 0.75}, f.err
}

type fakeSyncManager struct {
	result models.TriggerResult
	err    error
	status models.SyncStatus
}

func (f *fakeSyncManager) Trigger(models.SyncTrigger) (models.TriggerResult, error) {
	return f.result, f.err
}

func (f *fakeSyncManager) Status() models.SyncStatus {
	return f.status
}

type fakeRunLister struct {
	runs        []models.SyncRun
	stats       []models.DailyStat
	agents      []models.Agent
	vehicles    []models.Vehicle
	infractions []models.InfractionType
	lastFrom    time.Time
	lastTo      time.Time
	err         error
}

func (f *fakeRunLister) GetRecentSyncRuns(context.Context, int) ([]models.SyncRun, error) {
	return f.runs, f.err
}

func (f *fakeRunLister) GetDailyStats(_ context.Context, from, to time.Time) ([]models.DailyStat, error) {
	f.lastFrom = from
	f.lastTo = to
	return f.stats, f.err
}

func (f *fakeRunLister) ListAgents(context.Context) ([]models.Agent, error) {
	return f.agents, f.err
}

func (f *fakeRunLister) ListVehicles(context.Context) ([]models.Vehicle, error) {
	return f.vehicles, f.err
}

func (f *fakeRunLister) ListInfractionTypes(context.Context) ([]models.InfractionType, error) {
	return f.infractions, f.err
}

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            8480,
		DefaultPageSize: 50,
		MaxPageSize:     500,
	}
}

func newTestRouter(reader Reader, syncMgr SyncManager, runs RunLister) http.Handler {
	cfg := testServerConfig()
	return NewRouter(NewHandler(reader, syncMgr, runs, cfg), cfg)
}

func doRequest(t *testing.T, router http.Handler, method, target string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestViolationsEndpoint(t *testing.T) {
	reader := &fakeReader{
		rows: []models.Violation{
			{Reference: "AIT-001", OriginalAmount: 195.23},
			{Reference: "AIT-002", OriginalAmount: 88.38},
		},
		total:     120,
		fromCache: true,
	}
	router := newTestRouter(reader, &fakeSyncManager{}, &fakeRunLister{})

	rec, resp := doRequest(t, router, http.MethodGet,
		"/api/v1/violations?agent_code=AG-17,AG-23&min_amount=50&paid=false&q=paulista&strategy=cache_first&page=2&limit=40&order_by=issued_at&direction=asc")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Status != "success" {
		t.Errorf("response status = %q, want success", resp.Status)
	}
	if !resp.Metadata.Cached {
		t.Error("metadata.cached not set for cache hit")
	}

	if got := reader.lastFilter.AgentCodes; len(got) != 2 || got[0] != "AG-17" {
		t.Errorf("agent codes = %v, want [AG-17 AG-23]", got)
	}
	if reader.lastFilter.MinAmount == nil || *reader.lastFilter.MinAmount != 50 {
		t.Error("min_amount not parsed")
	}
	if reader.lastFilter.Paid == nil || *reader.lastFilter.Paid {
		t.Error("paid=false not parsed")
	}
	if reader.lastFilter.Search != "paulista" {
		t.Errorf("search = %q, want paulista", reader.lastFilter.Search)
	}
	if reader.lastStrategy != enginesync.StrategyCacheFirst {
		t.Errorf("strategy = %q, want CACHE_FIRST", reader.lastStrategy)
	}
	if reader.lastPage.Number != 2 || reader.lastPage.Limit != 40 {
		t.Errorf("page = %+v, want page 2 limit 40", reader.lastPage)
	}

	var data models.ViolationsResponse
	raw, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if len(data.Violations) != 2 {
		t.Errorf("got %d violations, want 2", len(data.Violations))
	}
	if data.Pagination.TotalCount != 120 || data.Pagination.TotalPages != 3 {
		t.Errorf("pagination = %+v, want total 120 over 3 pages", data.Pagination)
	}
	if !data.Pagination.HasMore {
		t.Error("HasMore = false on page 2 of 3")
	}
	if !data.FromCache {
		t.Error("FromCache not propagated")
	}
}

func TestViolationsLimitClamped(t *testing.T) {
	reader := &fakeReader{}
	router := newTestRouter(reader, &fakeSyncManager{}, &fakeRunLister{})

	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/violations?limit=99999")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if reader.lastPage.Limit != 500 {
		t.Errorf("limit = %d, want clamped to 500", reader.lastPage.Limit)
	}
}

func TestViolationsValidation(t *testing.T) {
	router := newTestRouter(&fakeReader{}, &fakeSyncManager{}, &fakeRunLister{})

	cases := []struct {
		name   string
		target string
	}{
		{"bad strategy", "/api/v1/violations?strategy=NEWEST"},
		{"bad date", "/api/v1/violations?issued_after=yesterday"},
		{"bad amount", "/api/v1/violations?min_amount=abc"},
		{"bad page", "/api/v1/violations?page=two"},
		{"bad paid", "/api/v1/violations?paid=si"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := doRequest(t, router, http.MethodGet, tc.target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("error = %+v, want VALIDATION_ERROR", resp.Error)
			}
		})
	}
}

func TestViolationsUpstreamError(t *testing.T) {
	reader := &fakeReader{err: context.DeadlineExceeded}
	router := newTestRouter(reader, &fakeSyncManager{}, &fakeRunLister{})

	rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/violations?strategy=FORCE_REFRESH")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != "UPSTREAM_ERROR" {
		t.Errorf("error = %+v, want UPSTREAM_ERROR", resp.Error)
	}
}

func TestTriggerSyncAccepted(t *testing.T) {
	syncMgr := &fakeSyncManager{result: models.TriggerResult{Accepted: true}}
	router := newTestRouter(&fakeReader{}, syncMgr, &fakeRunLister{})

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/sync")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if resp.Status != "success" {
		t.Errorf("response status = %q, want success", resp.Status)
	}
}

func TestTriggerSyncConflict(t *testing.T) {
	syncMgr := &fakeSyncManager{
		result: models.TriggerResult{Accepted: false, Reason: enginesync.ErrSyncInProgress.Error()},
		err:    enginesync.ErrSyncInProgress,
	}
	router := newTestRouter(&fakeReader{}, syncMgr, &fakeRunLister{})

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/sync")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != "SYNC_IN_PROGRESS" {
		t.Errorf("error = %+v, want SYNC_IN_PROGRESS", resp.Error)
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	last := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	next := last.Add(6 * time.Hour)
	syncMgr := &fakeSyncManager{status: models.SyncStatus{Running: true, LastRunAt: &last, NextRunAt: &next}}
	router := newTestRouter(&fakeReader{}, syncMgr, &fakeRunLister{})

	rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/sync/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var status models.SyncStatus
	raw, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if !status.Running {
		t.Error("Running not reported")
	}
	if status.LastRunAt == nil || !status.LastRunAt.Equal(last) {
		t.Errorf("LastRunAt = %v, want %v", status.LastRunAt, last)
	}
}

func TestSyncRunsEndpoint(t *testing.T) {
	runs := &fakeRunLister{runs: []models.SyncRun{
		{ID: 2, Status: models.SyncRunSucceeded},
		{ID: 1, Status: models.SyncRunFailed},
	}}
	router := newTestRouter(&fakeReader{}, &fakeSyncManager{}, runs)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/sync/runs?limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var listed []models.SyncRun
	raw, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(raw, &listed); err != nil {
		t.Fatalf("failed to decode runs: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != 2 {
		t.Errorf("runs = %+v, want newest first", listed)
	}
}

func TestSyncRunsLimitValidation(t *testing.T) {
	router := newTestRouter(&fakeReader{}, &fakeSyncManager{}, &fakeRunLister{})

	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/sync/runs?limit=5000")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDailyStatsEndpoint(t *testing.T) {
	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	lister := &fakeRunLister{
		stats: []models.DailyStat{
			{Day: day, ViolationCount: 12, TotalAmount: 2301.50, PaidCount: 4},
		},
	}
	router := newTestRouter(&fakeReader{}, &fakeSyncManager{}, lister)

	rec, resp := doRequest(t, router, http.MethodGet,
		"/api/v1/stats/daily?from=2026-05-04&to=2026-05-10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var listed []models.DailyStat
	raw, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(raw, &listed); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if len(listed) != 1 || listed[0].ViolationCount != 12 {
		t.Errorf("stats = %+v, want the seeded row", listed)
	}
	if got := lister.lastFrom.Format("2006-01-02"); got != "2026-05-04" {
		t.Errorf("from = %s, want 2026-05-04", got)
	}
}

func TestDailyStatsDefaultsToTrailingWeek(t *testing.T) {
	lister := &fakeRunLister{}
	router := newTestRouter(&fakeReader{}, &fakeSyncManager{}, lister)

	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/stats/daily")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if span := lister.lastTo.Sub(lister.lastFrom); span != 6*24*time.Hour {
		t.Errorf("default span = %s, want 144h", span)
	}
}

func TestDailyStatsRejectsInvertedRange(t *testing.T) {
	router := newTestRouter(&fakeReader{}, &fakeSyncManager{}, &fakeRunLister{})

	rec, _ := doRequest(t, router, http.MethodGet,
		"/api/v1/stats/daily?from=2026-05-10&to=2026-05-04")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDimensionsEndpoint(t *testing.T) {
	seen := time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)
	lister := &fakeRunLister{
		agents: []models.Agent{
			{Code: "AG-17", Name: "J. Souza", FirstSeen: seen, LastSeen: seen},
		},
		infractions: []models.InfractionType{
			{Code: "745-50", Description: "Avanço de sinal vermelho", FirstSeen: seen, LastSeen: seen},
		},
	}
	router := newTestRouter(&fakeReader{}, &fakeSyncManager{}, lister)

	rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/dimensions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var dims DimensionsResponse
	raw, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(raw, &dims); err != nil {
		t.Fatalf("failed to decode dimensions: %v", err)
	}
	if len(dims.Agents) != 1 || dims.Agents[0].Code != "AG-17" {
		t.Errorf("agents = %+v, want the seeded row", dims.Agents)
	}
	if len(dims.InfractionTypes) != 1 || dims.InfractionTypes[0].Description != "Avanço de sinal vermelho" {
		t.Errorf("infraction types = %+v, want the seeded row", dims.InfractionTypes)
	}
	if dims.Vehicles == nil || len(dims.Vehicles) != 0 {
		t.Errorf("vehicles = %+v, want empty slice", dims.Vehicles)
	}
}

func TestCacheInfoEndpoint(t *testing.T) {
	router := newTestRouter(&fakeReader{total: 1234}, &fakeSyncManager{}, &fakeRunLister{})

	rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/cache/info")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var info models.CacheInfo
	raw, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("failed to decode cache info: %v", err)
	}
	if info.TotalRecords != 1234 {
		t.Errorf("TotalRecords = %d, want 1234", info.TotalRecords)
	}
	if info.HitRate != 0.75 {
		t.Errorf("HitRate = %v, want 0.75", info.HitRate)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&fakeReader{}, &fakeSyncManager{}, &fakeRunLister{})

	rec, resp := doRequest(t, router, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Status != "success" {
		t.Errorf("response status = %q, want success", resp.Status)
	}
}
