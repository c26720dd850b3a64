// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/viaserra/multacache/internal/config"
	"github.com/viaserra/multacache/internal/logging"
	"github.com/viaserra/multacache/internal/metrics"
	"github.com/viaserra/multacache/internal/models"
)

// RunStore is the slice of the cache store the runner needs for audit
// rows, daily aggregates and retention.
type RunStore interface {
	CreateSyncRun(ctx context.Context, trigger models.SyncTrigger, startedAt time.Time) (int64, error)
	FinishSyncRun(ctx context.Context, run *models.SyncRun) error
	ReplaceDailyStat(ctx context.Context, day time.Time) (models.DailyStat, error)
	DeleteViolationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditTrail records the start and end of sync operations. Implemented
// by audit.Trail; recording failures never surface as errors here.
type AuditTrail interface {
	Start(ctx context.Context, operation string, metadata map[string]any) string
	Finish(ctx context.Context, id string, outcome string, summary map[string]any, err error)
}

// Runner executes full sync runs: paginated ingestion from upstream,
// dimension reconciliation, daily aggregate recomputation and the
// optional retention sweep. At most one run executes at a time; a
// trigger while running is rejected, never queued. Every run ends with
// the runner back in the idle state regardless of outcome.
type Runner struct {
	orch       *Orchestrator
	reconciler *Reconciler
	store      RunStore
	trail      AuditTrail
	cfg        config.SyncConfig
	retention  config.RetentionConfig

	mu        stdsync.Mutex
	running   bool
	lastRunAt *time.Time
	nextRunAt *time.Time
	// watermark is the start time of the last run whose ingestion
	// completed; the next run fetches upstream changes from here.
	watermark *time.Time

	stopChan chan struct{}
	wg       stdsync.WaitGroup
	now      func() time.Time
}

// NewRunner creates a runner. trail may be nil when auditing is
// disabled.
func NewRunner(orch *Orchestrator, reconciler *Reconciler, store RunStore, trail AuditTrail, cfg config.SyncConfig, retention config.RetentionConfig) *Runner {
	return &Runner{
		orch:       orch,
		reconciler: reconciler,
		store:      store,
		trail:      trail,
		cfg:        cfg,
		retention:  retention,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start launches the scheduler loop. When RunOnStartup is set an
// initial run executes before the first tick.
func (r *Runner) Start(ctx context.Context) {
	r.scheduleNext()

	if r.cfg.RunOnStartup {
		if err := r.RunOnce(ctx, models.TriggerStartup); err != nil {
			logging.Error().Err(err).Msg("Startup sync failed")
		}
	}

	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop signals the scheduler loop to exit and waits for it. A run in
// flight completes first.
func (r *Runner) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx, models.TriggerScheduled); err != nil {
				logging.Error().Err(err).Msg("Scheduled sync failed")
			}
		}
	}
}

// Trigger requests a manual sync run. The run executes in the
// background; the result reports whether it was accepted. When a run is
// already in progress the trigger is rejected with ErrSyncInProgress.
func (r *Runner) Trigger(trigger models.SyncTrigger) (models.TriggerResult, error) {
	if !r.tryAcquire() {
		metrics.RecordSyncRun("rejected", 0)
		return models.TriggerResult{
			Accepted: false,
			Reason:   ErrSyncInProgress.Error(),
		}, ErrSyncInProgress
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release()
		if err := r.run(context.Background(), trigger); err != nil {
			logging.Error().Err(err).Str("trigger", string(trigger)).Msg("Sync run failed")
		}
	}()

	return models.TriggerResult{Accepted: true}, nil
}

// RunOnce executes a full sync run synchronously. Used by the scheduler
// loop and as a deterministic tick in tests. Returns ErrSyncInProgress
// when a run is already executing.
func (r *Runner) RunOnce(ctx context.Context, trigger models.SyncTrigger) error {
	if !r.tryAcquire() {
		metrics.RecordSyncRun("rejected", 0)
		return ErrSyncInProgress
	}
	defer r.release()

	return r.run(ctx, trigger)
}

// Status returns the scheduler snapshot.
func (r *Runner) Status() models.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.SyncStatus{
		Running:   r.running,
		LastRunAt: r.lastRunAt,
		NextRunAt: r.nextRunAt,
	}
}

// run executes one full sync. The caller holds the running flag.
func (r *Runner) run(ctx context.Context, trigger models.SyncTrigger) error {
	start := r.now()
	since := r.sinceFor()

	auditID := r.auditStart(ctx, trigger, since)

	run := &models.SyncRun{
		Trigger:   trigger,
		Status:    models.SyncRunRunning,
		StartedAt: start,
	}

	id, err := r.store.CreateSyncRun(ctx, trigger, start)
	if err != nil {
		r.auditFinish(ctx, auditID, run, err)
		metrics.RecordSyncRun("failed", r.now().Sub(start))
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	run.ID = id

	logging.Info().Int64("run_id", id).Str("trigger", string(trigger)).Time("since", since).Msg("Sync run started")

	runErr := r.executePhases(ctx, run, since, start)

	ended := r.now()
	run.EndedAt = &ended
	if runErr != nil {
		run.Status = models.SyncRunFailed
		run.Error = runErr.Error()
	} else {
		run.Status = models.SyncRunSucceeded
	}

	if err := r.store.FinishSyncRun(ctx, run); err != nil {
		logging.Error().Err(err).Int64("run_id", id).Msg("Failed to finalize sync run record")
		if runErr == nil {
			runErr = fmt.Errorf("failed to finalize sync run: %w", err)
			run.Status = models.SyncRunFailed
		}
	}

	r.auditFinish(ctx, auditID, run, runErr)
	metrics.RecordSyncRun(string(run.Status), ended.Sub(start))

	logging.Info().
		Int64("run_id", id).
		Str("status", string(run.Status)).
		Dur("duration", ended.Sub(start)).
		Int("ingested", run.Ingestion.Processed).
		Int("failed_records", run.Ingestion.Failed).
		Msg("Sync run finished")

	return runErr
}

// executePhases runs ingestion, reconciliation, aggregation and
// retention in order. Ingestion failure aborts the run; later phases
// only log their partial failures.
func (r *Runner) executePhases(ctx context.Context, run *models.SyncRun, since, start time.Time) error {
	ingestion, err := r.orch.Refresh(ctx, since)
	run.Ingestion = ingestion
	if err != nil {
		return err
	}
	// Advance from the run start, not completion: records updated
	// upstream while pages were in flight must land in the next window.
	r.setWatermark(start)

	reconciled := r.reconciler.ReconcileAll(ctx)
	run.Dimensions.Add(reconciled.Agents)
	run.Dimensions.Add(reconciled.Vehicles)
	run.Dimensions.Add(reconciled.Infractions)

	run.Aggregates = r.recomputeAggregates(ctx, start)

	if r.retention.Enabled && r.retention.MaxAge > 0 {
		cutoff := start.Add(-r.retention.MaxAge)
		deleted, err := r.store.DeleteViolationsBefore(ctx, cutoff)
		if err != nil {
			logging.Error().Err(err).Time("cutoff", cutoff).Msg("Retention sweep failed")
		} else if deleted > 0 {
			logging.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Retention sweep removed expired records")
		}
	}

	return nil
}

// recomputeAggregates replaces the daily aggregate rows for the
// trailing window, most recent day first. Each day is independent.
func (r *Runner) recomputeAggregates(ctx context.Context, start time.Time) models.BatchResult {
	var result models.BatchResult

	for i := 0; i < r.cfg.AggregateWindowDays; i++ {
		day := start.AddDate(0, 0, -i)
		result.Processed++
		if _, err := r.store.ReplaceDailyStat(ctx, day); err != nil {
			result.Failed++
			logging.Warn().Err(err).Time("day", day).Msg("Daily aggregate recomputation failed")
			continue
		}
		result.Updated++
	}

	return result
}

// sinceFor picks the lower bound for ingestion. The first run mirrors
// everything; later runs fetch from the start of the last run that
// ingested successfully. Merge semantics make overlap harmless.
func (r *Runner) sinceFor() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watermark == nil {
		return time.Time{}
	}
	return *r.watermark
}

func (r *Runner) setWatermark(start time.Time) {
	r.mu.Lock()
	r.watermark = &start
	r.mu.Unlock()
}

func (r *Runner) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Runner) release() {
	ended := r.now()
	r.mu.Lock()
	r.running = false
	r.lastRunAt = &ended
	r.mu.Unlock()
	r.scheduleNext()
}

func (r *Runner) scheduleNext() {
	if r.cfg.Interval <= 0 {
		return
	}
	next := r.now().Add(r.cfg.Interval)
	r.mu.Lock()
	r.nextRunAt = &next
	r.mu.Unlock()
}

func (r *Runner) auditStart(ctx context.Context, trigger models.SyncTrigger, since time.Time) string {
	if r.trail == nil {
		return ""
	}
	return r.trail.Start(ctx, "full_sync", map[string]any{
		"trigger": string(trigger),
		"since":   since,
	})
}

func (r *Runner) auditFinish(ctx context.Context, auditID string, run *models.SyncRun, runErr error) {
	if r.trail == nil {
		return
	}
	outcome := string(models.SyncRunSucceeded)
	if runErr != nil {
		outcome = string(models.SyncRunFailed)
	}
	r.trail.Finish(ctx, auditID, outcome, map[string]any{
		"run_id":             run.ID,
		"ingested":           run.Ingestion.Processed,
		"inserted":           run.Ingestion.Inserted,
		"updated":            run.Ingestion.Updated,
		"failed_records":     run.Ingestion.Failed,
		"dimension_rows":     run.Dimensions.Processed,
		"aggregate_days":     run.Aggregates.Processed,
		"aggregate_failures": run.Aggregates.Failed,
	}, runErr)
}
