// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package database

import (
	"strings"

	"github.com/viaserra/multacache/internal/models"
)

// buildViolationFilter translates a ViolationFilter into a parameterized
// WHERE clause. All dimensions combine with AND; slice fields expand to
// IN clauses (OR within the field). Returns an empty string when the
// filter is empty.
func buildViolationFilter(filter models.ViolationFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	appendInClause("reference", filter.References, &clauses, &args)
	appendInClause("vehicle_code", filter.VehicleCodes, &clauses, &args)
	appendInClause("agent_code", filter.AgentCodes, &clauses, &args)
	appendInClause("infraction_code", filter.InfractionCodes, &clauses, &args)

	if filter.IssuedAfter != nil {
		clauses = append(clauses, "issued_at >= ?")
		args = append(args, *filter.IssuedAfter)
	}
	if filter.IssuedBefore != nil {
		clauses = append(clauses, "issued_at <= ?")
		args = append(args, *filter.IssuedBefore)
	}
	if filter.DueAfter != nil {
		clauses = append(clauses, "due_at >= ?")
		args = append(args, *filter.DueAfter)
	}
	if filter.DueBefore != nil {
		clauses = append(clauses, "due_at <= ?")
		args = append(args, *filter.DueBefore)
	}

	if filter.MinAmount != nil {
		clauses = append(clauses, "original_amount >= ?")
		args = append(args, *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		clauses = append(clauses, "original_amount <= ?")
		args = append(args, *filter.MaxAmount)
	}

	if filter.Paid != nil {
		if *filter.Paid {
			clauses = append(clauses, "paid_at IS NOT NULL")
		} else {
			clauses = append(clauses, "paid_at IS NULL")
		}
	}

	if filter.Search != "" {
		clauses = append(clauses, "(reference ILIKE ? OR location ILIKE ? OR observations ILIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// appendInClause adds an IN clause for a multi-select filter dimension.
func appendInClause(column string, values []string, clauses *[]string, args *[]interface{}) {
	if len(values) == 0 {
		return
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, v)
	}
	*clauses = append(*clauses, column+" IN ("+strings.Join(placeholders, ", ")+")")
}

// orderableColumns whitelists ORDER BY targets. Anything else falls back
// to issued_at so caller input can never reach the SQL text.
var orderableColumns = map[string]string{
	"reference":       "reference",
	"issued_at":       "issued_at",
	"due_at":          "due_at",
	"paid_at":         "paid_at",
	"original_amount": "original_amount",
	"last_updated_at": "last_updated_at",
}

// orderColumn resolves a requested sort column against the whitelist.
func orderColumn(requested string) string {
	if col, ok := orderableColumns[strings.ToLower(requested)]; ok {
		return col
	}
	return "issued_at"
}

// orderDirection resolves a sort direction, defaulting to descending.
func orderDirection(requested string) string {
	if strings.EqualFold(requested, "asc") {
		return "ASC"
	}
	return "DESC"
}
