// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package models

import "time"

// APIResponse is the envelope for every HTTP response.
//
// Example success:
//
//	{
//	  "status": "success",
//	  "data": {...},
//	  "metadata": {"timestamp": "2026-08-28T12:00:00Z", "query_time_ms": 12, "cached": true}
//	}
//
// Example error:
//
//	{
//	  "status": "error",
//	  "error": {"code": "SYNC_IN_PROGRESS", "message": "sync already in progress"},
//	  "metadata": {"timestamp": "2026-08-28T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response observability fields. Cached reports whether
// the payload was served from the local cache without touching upstream.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError is a structured error body with a machine-readable code.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// PaginationInfo describes the page of a violation query result.
type PaginationInfo struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// ViolationsResponse wraps a page of violations with pagination metadata
// and the cache provenance of the read.
type ViolationsResponse struct {
	Violations []Violation    `json:"violations"`
	Pagination PaginationInfo `json:"pagination"`
	FromCache  bool           `json:"from_cache"`
}
