// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

// Package audit records the start and end of synchronization operations
// so operators can reconstruct what the engine did and when. Auditing
// is best-effort: a failing audit store never fails the operation being
// audited.
package audit

import (
	"time"

	"github.com/goccy/go-json"
)

// Phase marks whether an event opens or closes an operation.
type Phase string

const (
	PhaseStart  Phase = "start"
	PhaseFinish Phase = "finish"
)

// Outcome is the terminal result of an audited operation.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
)

// Event is one audit record. A full operation produces two events
// sharing an OperationID: a start event with OutcomePending and a
// finish event carrying the result.
type Event struct {
	// ID is unique per event.
	ID string `json:"id"`

	// OperationID links the start and finish events of one operation.
	OperationID string `json:"operation_id"`

	Timestamp time.Time `json:"timestamp"`

	// Operation names what ran, e.g. "full_sync".
	Operation string `json:"operation"`

	Phase   Phase   `json:"phase"`
	Outcome Outcome `json:"outcome"`

	// Metadata holds operation-specific details: trigger kind, record
	// counters, time bounds.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// Error carries the failure message on failed finish events.
	Error string `json:"error,omitempty"`
}
