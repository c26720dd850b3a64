// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package sync

import "errors"

// ErrSyncInProgress is returned by Trigger and RunOnce while a full sync
// run is already executing. Triggers are rejected, never queued.
var ErrSyncInProgress = errors.New("sync already in progress")
