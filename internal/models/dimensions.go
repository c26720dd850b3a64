// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package models

import "time"

// Dimension rows are derived lookup tables projected out of the cached
// violations. They are never fetched from the upstream source and never
// deleted, only upserted by natural code.

// Agent is the issuing-agent dimension.
type Agent struct {
	Code      string    `json:"code"`
	Name      string    `json:"name,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Vehicle is the fleet-vehicle dimension.
type Vehicle struct {
	Code      string    `json:"code"`
	Plate     string    `json:"plate,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// InfractionType is the infraction-code dimension.
type InfractionType struct {
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// DimensionTuple is one distinct (code, detail) pair projected from the
// cache, the input unit of the dimension reconciler.
type DimensionTuple struct {
	Code   string
	Detail string
}
