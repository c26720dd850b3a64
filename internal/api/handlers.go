// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

// Package api exposes the violation cache over HTTP: the query
// endpoint with its read strategies, sync triggering and status, and
// operator views of cache health and recent runs.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/viaserra/multacache/internal/config"
	"github.com/viaserra/multacache/internal/models"
	enginesync "github.com/viaserra/multacache/internal/sync"
	"github.com/viaserra/multacache/internal/validation"
)

// syncRunsQuery bounds the /sync/runs list size.
type syncRunsQuery struct {
	Limit int `validate:"min=1,max=100"`
}

// Reader serves violation queries. Implemented by sync.Orchestrator.
type Reader interface {
	Read(ctx context.Context, filter models.ViolationFilter, page models.Page, strategy enginesync.Strategy, window time.Duration) ([]models.Violation, int64, bool, error)
	CacheInfo(ctx context.Context) (models.CacheInfo, error)
}

// SyncManager triggers and reports on sync runs. Implemented by
// sync.Runner.
type SyncManager interface {
	Trigger(trigger models.SyncTrigger) (models.TriggerResult, error)
	Status() models.SyncStatus
}

// RunLister lists store-backed resources: sync run audit rows, daily
// aggregates and the dimension tables. Implemented by database.DB.
type RunLister interface {
	GetRecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
	GetDailyStats(ctx context.Context, from, to time.Time) ([]models.DailyStat, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	ListInfractionTypes(ctx context.Context) ([]models.InfractionType, error)
}

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	reader Reader
	sync   SyncManager
	runs   RunLister
	cfg    *config.ServerConfig
}

// NewHandler creates the API handler set.
func NewHandler(reader Reader, syncMgr SyncManager, runs RunLister, cfg *config.ServerConfig) *Handler {
	return &Handler{
		reader: reader,
		sync:   syncMgr,
		runs:   runs,
		cfg:    cfg,
	}
}

// Violations returns a page of violation records.
//
// Method: GET
// Path: /api/v1/violations
//
// Query parameters: reference, vehicle_code, agent_code,
// infraction_code (comma-separated lists), issued_after, issued_before,
// due_after, due_before, min_amount, max_amount, paid, q, strategy,
// page, limit, order_by, direction.
func (h *Handler) Violations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	filter, err := parseViolationFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	page, err := h.parsePage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	strategy, err := enginesync.ParseStrategy(r.URL.Query().Get("strategy"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	rows, total, fromCache, err := h.reader.Read(r.Context(), filter, page, strategy, 0)
	if err != nil {
		respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to read violations", err)
		return
	}
	if rows == nil {
		rows = []models.Violation{}
	}

	totalPages := int((total + int64(page.Limit) - 1) / int64(page.Limit))
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: models.ViolationsResponse{
			Violations: rows,
			Pagination: models.PaginationInfo{
				Page:       page.Number,
				Limit:      page.Limit,
				TotalCount: total,
				TotalPages: totalPages,
				HasMore:    page.Number < totalPages,
			},
			FromCache: fromCache,
		},
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Cached:      fromCache,
		},
	})
}

// TriggerSync requests a manual sync run.
//
// Method: POST
// Path: /api/v1/sync
//
// Responds 202 when the run was accepted and 409 when a run is already
// in progress. Triggers are never queued.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.Trigger(models.TriggerManual)
	if err != nil {
		if errors.Is(err, enginesync.ErrSyncInProgress) {
			respondJSON(w, http.StatusConflict, &models.APIResponse{
				Status: "error",
				Data:   result,
				Metadata: models.Metadata{
					Timestamp: time.Now(),
				},
				Error: &models.APIError{
					Code:    "SYNC_IN_PROGRESS",
					Message: enginesync.ErrSyncInProgress.Error(),
				},
			})
			return
		}
		respondError(w, http.StatusInternalServerError, "SYNC_ERROR", "Failed to trigger sync", err)
		return
	}

	respondJSON(w, http.StatusAccepted, &models.APIResponse{
		Status: "success",
		Data:   result,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// SyncStatus reports the scheduler snapshot.
//
// Method: GET
// Path: /api/v1/sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   h.sync.Status(),
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// SyncRuns lists recent sync run audit rows.
//
// Method: GET
// Path: /api/v1/sync/runs
func (h *Handler) SyncRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := getIntParam(r, "limit", 20)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	query := syncRunsQuery{Limit: limit}
	if verr := validation.ValidateStruct(&query); verr != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), nil)
		return
	}

	runs, err := h.runs.GetRecentSyncRuns(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list sync runs", err)
		return
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   runs,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// DimensionsResponse groups the three dimension tables.
type DimensionsResponse struct {
	Agents          []models.Agent          `json:"agents"`
	Vehicles        []models.Vehicle        `json:"vehicles"`
	InfractionTypes []models.InfractionType `json:"infraction_types"`
}

// Dimensions lists the derived lookup tables reconciled from the cache.
//
// Method: GET
// Path: /api/v1/dimensions
func (h *Handler) Dimensions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agents, err := h.runs.ListAgents(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list agents", err)
		return
	}
	vehicles, err := h.runs.ListVehicles(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list vehicles", err)
		return
	}
	infractions, err := h.runs.ListInfractionTypes(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list infraction types", err)
		return
	}

	if agents == nil {
		agents = []models.Agent{}
	}
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	if infractions == nil {
		infractions = []models.InfractionType{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: DimensionsResponse{
			Agents:          agents,
			Vehicles:        vehicles,
			InfractionTypes: infractions,
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// DailyStats returns the derived daily aggregate rows for a date range,
// defaulting to the trailing seven days.
//
// Method: GET
// Path: /api/v1/stats/daily
func (h *Handler) DailyStats(w http.ResponseWriter, r *http.Request) {
	to, err := getTimeParam(r, "to")
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	from, err := getTimeParam(r, "from")
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	if to == nil {
		now := time.Now().UTC()
		to = &now
	}
	if from == nil {
		d := to.AddDate(0, 0, -6)
		from = &d
	}
	if from.After(*to) {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "from must not be after to", nil)
		return
	}

	stats, err := h.runs.GetDailyStats(r.Context(), *from, *to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read daily stats", err)
		return
	}
	if stats == nil {
		stats = []models.DailyStat{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   stats,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// CacheInfo reports cache size and hit counters.
//
// Method: GET
// Path: /api/v1/cache/info
func (h *Handler) CacheInfo(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	info, err := h.reader.CacheInfo(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read cache info", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   info,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// Health reports liveness.
//
// Method: GET
// Path: /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   map[string]string{"status": "healthy"},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

func parseViolationFilter(r *http.Request) (models.ViolationFilter, error) {
	filter := models.ViolationFilter{
		References:      getListParam(r, "reference"),
		VehicleCodes:    getListParam(r, "vehicle_code"),
		AgentCodes:      getListParam(r, "agent_code"),
		InfractionCodes: getListParam(r, "infraction_code"),
		Search:          r.URL.Query().Get("q"),
	}

	var err error
	if filter.IssuedAfter, err = getTimeParam(r, "issued_after"); err != nil {
		return filter, err
	}
	if filter.IssuedBefore, err = getTimeParam(r, "issued_before"); err != nil {
		return filter, err
	}
	if filter.DueAfter, err = getTimeParam(r, "due_after"); err != nil {
		return filter, err
	}
	if filter.DueBefore, err = getTimeParam(r, "due_before"); err != nil {
		return filter, err
	}
	if filter.MinAmount, err = getFloatParam(r, "min_amount"); err != nil {
		return filter, err
	}
	if filter.MaxAmount, err = getFloatParam(r, "max_amount"); err != nil {
		return filter, err
	}
	if filter.Paid, err = getBoolParam(r, "paid"); err != nil {
		return filter, err
	}
	return filter, nil
}

func (h *Handler) parsePage(r *http.Request) (models.Page, error) {
	number, err := getIntParam(r, "page", 1)
	if err != nil {
		return models.Page{}, err
	}
	if number < 1 {
		number = 1
	}

	limit, err := getIntParam(r, "limit", h.cfg.DefaultPageSize)
	if err != nil {
		return models.Page{}, err
	}
	if limit < 1 {
		limit = h.cfg.DefaultPageSize
	}
	if limit > h.cfg.MaxPageSize {
		limit = h.cfg.MaxPageSize
	}

	return models.Page{
		Number:    number,
		Limit:     limit,
		OrderBy:   r.URL.Query().Get("order_by"),
		Direction: r.URL.Query().Get("direction"),
	}, nil
}
