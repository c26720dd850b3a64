// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package models

import "time"

// SyncRunStatus is the lifecycle state of a sync run.
type SyncRunStatus string

const (
	SyncRunRunning   SyncRunStatus = "running"
	SyncRunSucceeded SyncRunStatus = "succeeded"
	SyncRunFailed    SyncRunStatus = "failed"
)

// SyncTrigger identifies what started a sync run.
type SyncTrigger string

const (
	TriggerManual    SyncTrigger = "manual"
	TriggerScheduled SyncTrigger = "scheduled"
	TriggerStartup   SyncTrigger = "startup"
)

// BatchResult accumulates per-record outcomes of one processing phase.
// Records are processed independently; a failed record never aborts the
// remainder, it is only counted here.
type BatchResult struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

// Add merges another result into this one.
func (r *BatchResult) Add(other BatchResult) {
	r.Processed += other.Processed
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Failed += other.Failed
}

// ReconcileResult holds per-dimension reconciliation counters.
type ReconcileResult struct {
	Agents      BatchResult `json:"agents"`
	Vehicles    BatchResult `json:"vehicles"`
	Infractions BatchResult `json:"infractions"`
}

// SyncRun is the audit entity for one synchronization attempt. It is
// terminal once EndedAt is set and never mutated afterwards.
type SyncRun struct {
	ID         int64         `json:"id"`
	Trigger    SyncTrigger   `json:"trigger"`
	Status     SyncRunStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	Error      string        `json:"error,omitempty"`
	Ingestion  BatchResult   `json:"ingestion"`
	Dimensions BatchResult   `json:"dimensions"`
	Aggregates BatchResult   `json:"aggregates"`
}

// SyncStatus is the operator-facing snapshot of the scheduler.
type SyncStatus struct {
	Running   bool       `json:"running"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// TriggerResult is returned by a manual sync trigger. A trigger while a
// run is in progress is rejected, never queued.
type TriggerResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	RunID    int64  `json:"run_id,omitempty"`
}
