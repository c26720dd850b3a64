// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

// Package models defines the data types shared across the sync engine:
// cached violation records, dimension rows, sync runs, and API envelopes.
package models

import "time"

// Violation is one denormalized traffic-violation record in the local
// cache. Identity is Reference, the official notice number assigned by
// the issuing authority; re-ingesting a record with the same reference
// updates in place, never duplicates.
type Violation struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`

	// Dimension codes. Nullable: the upstream source may omit them.
	VehicleCode    *string `json:"vehicle_code,omitempty"`
	AgentCode      *string `json:"agent_code,omitempty"`
	InfractionCode *string `json:"infraction_code,omitempty"`

	// Last-seen dimension metadata, carried inline by the pre-joined
	// upstream rows. Used by the dimension reconciler.
	VehiclePlate     *string `json:"vehicle_plate,omitempty"`
	AgentName        *string `json:"agent_name,omitempty"`
	InfractionDetail *string `json:"infraction_detail,omitempty"`

	// Monetary amounts in the source currency.
	OriginalAmount  float64  `json:"original_amount"`
	PaidAmount      *float64 `json:"paid_amount,omitempty"`
	CorrectedAmount *float64 `json:"corrected_amount,omitempty"` // recalculated with interest

	IssuedAt time.Time  `json:"issued_at"`
	DueAt    *time.Time `json:"due_at,omitempty"`
	PaidAt   *time.Time `json:"paid_at,omitempty"`
	AppealAt *time.Time `json:"appeal_at,omitempty"`

	Location     string `json:"location,omitempty"`
	Observations string `json:"observations,omitempty"`

	// Cache bookkeeping.
	FetchedAt     time.Time `json:"fetched_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	SourceTag     string    `json:"source_tag,omitempty"`
	IsComplete    bool      `json:"is_complete"`
	IsValidated   bool      `json:"is_validated"`
}

// UpstreamViolation is one row as returned by the upstream transactional
// source. Rows may be partial: nil pointers and empty strings mean the
// field was absent upstream and must not overwrite cached values.
type UpstreamViolation struct {
	Reference        string     `json:"reference"`
	VehicleCode      *string    `json:"vehicle_code"`
	AgentCode        *string    `json:"agent_code"`
	InfractionCode   *string    `json:"infraction_code"`
	VehiclePlate     *string    `json:"vehicle_plate"`
	AgentName        *string    `json:"agent_name"`
	InfractionDetail *string    `json:"infraction_detail"`
	OriginalAmount   float64    `json:"original_amount"`
	PaidAmount       *float64   `json:"paid_amount"`
	CorrectedAmount  *float64   `json:"corrected_amount"`
	IssuedAt         time.Time  `json:"issued_at"`
	DueAt            *time.Time `json:"due_at"`
	PaidAt           *time.Time `json:"paid_at"`
	AppealAt         *time.Time `json:"appeal_at"`
	Location         string     `json:"location"`
	Observations     string     `json:"observations"`
	SourceTag        string     `json:"source_tag"`
	IsValidated      bool       `json:"is_validated"`
}

// ViolationFilter narrows violation queries. All fields are optional and
// combine with AND; slice fields use OR within the field.
type ViolationFilter struct {
	References      []string   `json:"references,omitempty"`
	VehicleCodes    []string   `json:"vehicle_codes,omitempty"`
	AgentCodes      []string   `json:"agent_codes,omitempty"`
	InfractionCodes []string   `json:"infraction_codes,omitempty"`
	IssuedAfter     *time.Time `json:"issued_after,omitempty"`
	IssuedBefore    *time.Time `json:"issued_before,omitempty"`
	DueAfter        *time.Time `json:"due_after,omitempty"`
	DueBefore       *time.Time `json:"due_before,omitempty"`
	MinAmount       *float64   `json:"min_amount,omitempty"`
	MaxAmount       *float64   `json:"max_amount,omitempty"`
	Paid            *bool      `json:"paid,omitempty"`
	// Search matches Reference, Location and Observations partially,
	// case-insensitive.
	Search string `json:"search,omitempty"`
}

// Page holds pagination and ordering for violation queries.
type Page struct {
	Number    int    `json:"page"`
	Limit     int    `json:"limit"`
	OrderBy   string `json:"order_by"`
	Direction string `json:"direction"` // "asc" or "desc"
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// CacheStats holds process-lifetime cache counters. Volatile: reset on
// restart.
type CacheStats struct {
	Hits            int64     `json:"hits"`
	Misses          int64     `json:"misses"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

// HitRate returns the fraction of reads served from cache, or 0 when no
// reads have been observed.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// CacheInfo is the operator-facing cache summary.
type CacheInfo struct {
	TotalRecords    int64     `json:"total_records"`
	Hits            int64     `json:"hits"`
	Misses          int64     `json:"misses"`
	HitRate         float64   `json:"hit_rate"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

// DailyStat is one derived daily aggregate row, recomputed by
// delete-and-replace for a trailing window at the end of every sync run.
type DailyStat struct {
	Day            time.Time `json:"day"`
	ViolationCount int64     `json:"violation_count"`
	TotalAmount    float64   `json:"total_amount"`
	PaidCount      int64     `json:"paid_count"`
	PaidAmount     float64   `json:"paid_amount"`
	ComputedAt     time.Time `json:"computed_at"`
}
