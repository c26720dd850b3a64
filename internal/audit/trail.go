// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/viaserra/multacache/internal/logging"
)

// Trail records operation start/finish pairs against a Store. All
// methods are best-effort: store or marshal failures are logged and
// swallowed so auditing can never break a sync run.
type Trail struct {
	store Store
	now   func() time.Time

	mu   sync.Mutex
	open map[string]string // operation id -> operation name
}

// NewTrail creates an audit trail over store.
func NewTrail(store Store) *Trail {
	return &Trail{
		store: store,
		now:   time.Now,
		open:  make(map[string]string),
	}
}

// Start records the beginning of an operation and returns the
// operation id to pass to Finish.
func (t *Trail) Start(ctx context.Context, operation string, metadata map[string]any) string {
	operationID := uuid.NewString()

	t.mu.Lock()
	t.open[operationID] = operation
	t.mu.Unlock()

	t.save(ctx, &Event{
		ID:          uuid.NewString(),
		OperationID: operationID,
		Timestamp:   t.now(),
		Operation:   operation,
		Phase:       PhaseStart,
		Outcome:     OutcomePending,
		Metadata:    marshalMetadata(metadata),
	})

	return operationID
}

// Finish records the end of an operation.
func (t *Trail) Finish(ctx context.Context, operationID string, outcome string, summary map[string]any, opErr error) {
	t.mu.Lock()
	operation, ok := t.open[operationID]
	delete(t.open, operationID)
	t.mu.Unlock()
	if !ok {
		operation = "unknown"
	}

	event := &Event{
		ID:          uuid.NewString(),
		OperationID: operationID,
		Timestamp:   t.now(),
		Operation:   operation,
		Phase:       PhaseFinish,
		Outcome:     Outcome(outcome),
		Metadata:    marshalMetadata(summary),
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}

	t.save(ctx, event)
}

// Recent exposes the underlying store for read endpoints.
func (t *Trail) Recent(ctx context.Context, limit int) ([]Event, error) {
	return t.store.Recent(ctx, limit)
}

func (t *Trail) save(ctx context.Context, event *Event) {
	if err := t.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("operation", event.Operation).Str("phase", string(event.Phase)).Msg("Failed to save audit event")
	}
}

func marshalMetadata(metadata map[string]any) json.RawMessage {
	if len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to marshal audit metadata")
		return nil
	}
	return raw
}
