// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package database

import "errors"

// ErrNotFound is returned when a lookup by natural key matches no row.
var ErrNotFound = errors.New("record not found")
