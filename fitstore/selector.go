// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package fitstore

import (
	"fmt"
	"sort"
	"strings"
)

// Selector matches rows by column value. Supported predicates are equality
// (scalar value), set membership (slice value, the "$in" form) and null
// checks (nil value). Keys are column names; unknown columns are rejected so
// a typo cannot silently match everything.
type Selector map[string]any

// In builds a set-membership predicate value for a Selector.
func In(values ...string) []string { return values }

// compileSelector renders a selector into a SQL WHERE clause against the
// given column whitelist. An empty selector compiles to no clause.
func compileSelector(collection string, columns map[string]bool, sel Selector) (string, []any, error) {
	if len(sel) == 0 {
		return "", nil, nil
	}
	// Deterministic clause order keeps query plans and tests stable.
	keys := make([]string, 0, len(sel))
	for k := range sel {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	var args []any
	for _, col := range keys {
		if !columns[col] {
			return "", nil, fmt.Errorf("fitstore: unknown column %q in selector for %s", col, collection)
		}
		switch v := sel[col].(type) {
		case nil:
			clauses = append(clauses, col+" IS NULL")
		case []string:
			if len(v) == 0 {
				clauses = append(clauses, "1 = 0")
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(v)), ",")
			clauses = append(clauses, col+" IN ("+placeholders+")")
			for _, elem := range v {
				args = append(args, elem)
			}
		case []any:
			if len(v) == 0 {
				clauses = append(clauses, "1 = 0")
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(v)), ",")
			clauses = append(clauses, col+" IN ("+placeholders+")")
			args = append(args, v...)
		default:
			clauses = append(clauses, col+" = ?")
			args = append(args, v)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
