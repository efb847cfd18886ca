// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"strings"

	"github.com/xwb1989/sqlparser"
)

// LogicalPaginationChecker flags the case where a framework applies
// out-of-band row bounds (offset/limit) but the underlying SQL carries no
// LIMIT at all — the database still executes a full fetch; pagination
// exists only in the application's illusion of it.
type LogicalPaginationChecker struct {
	baseChecker
	visitorBase
}

func NewLogicalPaginationChecker() *LogicalPaginationChecker {
	return &LogicalPaginationChecker{baseChecker: newBaseChecker("LogicalPagination", 40)}
}

func (c *LogicalPaginationChecker) Check(ctx *SqlContext) []Violation {
	if ctx.RowBounds == nil || ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	sel, ok := ctx.Statement.AST.(*sqlparser.Select)
	if !ok || sel.Limit != nil {
		return nil
	}
	return []Violation{violation(c.id, RiskCritical,
		"row bounds were supplied out-of-band but the SQL has no LIMIT clause",
		"push pagination into the SQL with a real LIMIT/OFFSET instead of fetching everything")}
}

// DeepPaginationChecker flags a LIMIT whose OFFSET exceeds a configured
// threshold; deep offsets force the database to scan and discard every
// preceding row.
type DeepPaginationChecker struct {
	baseChecker
	visitorBase
	cfg *ConfigStore
}

func NewDeepPaginationChecker(cfg *ConfigStore) *DeepPaginationChecker {
	return &DeepPaginationChecker{baseChecker: newBaseChecker("DeepPagination", 41), cfg: cfg}
}

func (c *DeepPaginationChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	info := ParseLimit(ctx.Statement.AST)
	if !info.Present || !info.Numeric {
		return nil
	}
	threshold := c.cfg.Load().DeepPaginationOffsetThreshold
	if info.Offset <= threshold {
		return nil
	}
	return []Violation{violation(c.id, RiskMedium,
		"LIMIT offset exceeds the configured deep-pagination threshold",
		"use keyset (seek-based) pagination instead of large offsets")}
}

// LargePageSizeChecker flags a LIMIT row count above a configured cap.
type LargePageSizeChecker struct {
	baseChecker
	visitorBase
	cfg *ConfigStore
}

func NewLargePageSizeChecker(cfg *ConfigStore) *LargePageSizeChecker {
	return &LargePageSizeChecker{baseChecker: newBaseChecker("LargePageSize", 42), cfg: cfg}
}

func (c *LargePageSizeChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	info := ParseLimit(ctx.Statement.AST)
	if !info.Present || !info.Numeric {
		return nil
	}
	cap := c.cfg.Load().LargePageSizeCap
	if info.RowCount <= cap {
		return nil
	}
	return []Violation{violation(c.id, RiskMedium,
		"LIMIT row count exceeds the configured page-size cap",
		"reduce the requested page size or require cursor-based paging")}
}

// MissingOrderByChecker flags a paginated query (LIMIT present) with no
// ORDER BY: without a deterministic sort, pages can skip or repeat rows
// across reads.
type MissingOrderByChecker struct {
	baseChecker
	visitorBase
}

func NewMissingOrderByChecker() *MissingOrderByChecker {
	return &MissingOrderByChecker{baseChecker: newBaseChecker("MissingOrderBy", 43)}
}

func (c *MissingOrderByChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	sel, ok := ctx.Statement.AST.(*sqlparser.Select)
	if !ok || sel.Limit == nil {
		return nil
	}
	if HasOrderBy(ctx.Statement.AST) {
		return nil
	}
	return []Violation{violation(c.id, RiskLow,
		"paginated query has no ORDER BY; page contents are not stable across reads",
		"add a deterministic ORDER BY, ideally on a unique key")}
}

// NoPaginationChecker flags a fully unbounded SELECT (no LIMIT at all)
// against a table configured as large, where a full scan is expensive by
// construction.
type NoPaginationChecker struct {
	baseChecker
	visitorBase
	cfg *ConfigStore
}

func NewNoPaginationChecker(cfg *ConfigStore) *NoPaginationChecker {
	return &NoPaginationChecker{baseChecker: newBaseChecker("NoPagination", 44), cfg: cfg}
}

func (c *NoPaginationChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	sel, ok := ctx.Statement.AST.(*sqlparser.Select)
	if !ok || sel.Limit != nil {
		return nil
	}
	largeTables := c.cfg.Load().LargeTables
	if len(largeTables) == 0 {
		return nil
	}
	for _, t := range TableNames(sel) {
		for _, lt := range largeTables {
			if strings.EqualFold(t, lt) {
				return []Violation{violation(c.id, RiskMedium,
					"unbounded SELECT against large table \""+t+"\" with no LIMIT",
					"add a LIMIT or WHERE predicate that bounds the scan")}
			}
		}
	}
	return nil
}
