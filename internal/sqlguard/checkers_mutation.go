// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// NoWhereClauseChecker flags Update/Delete statements with no WHERE clause
// at all — the single highest-confidence, highest-severity rule in the
// bank, since an unbounded mutation is almost always unintended.
type NoWhereClauseChecker struct {
	baseChecker
	visitorBase
}

func NewNoWhereClauseChecker() *NoWhereClauseChecker {
	c := &NoWhereClauseChecker{baseChecker: newBaseChecker("NoWhereClause", 10)}
	return c
}

func (c *NoWhereClauseChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	return dispatch(c, ctx, ctx.Statement.AST)
}

func (c *NoWhereClauseChecker) visitUpdate(ctx *SqlContext, stmt *sqlparser.Update) []Violation {
	if stmt.Where != nil {
		return nil
	}
	return []Violation{violation(c.id, RiskCritical,
		"UPDATE statement has no WHERE clause and will affect every row",
		"add a WHERE clause that scopes the update to the intended rows")}
}

func (c *NoWhereClauseChecker) visitDelete(ctx *SqlContext, stmt *sqlparser.Delete) []Violation {
	if stmt.Where != nil {
		return nil
	}
	return []Violation{violation(c.id, RiskCritical,
		"DELETE statement has no WHERE clause and will remove every row",
		"add a WHERE clause that scopes the delete to the intended rows")}
}

// literalTautologyRe matches a single word, optionally quoted, compared for
// equality with itself. isTautology counts a quoted or numeric literal on
// the left ('a'='a', 1=1) in every mode; a bare identifier compared to
// itself (col=col) counts only with CheckerConfig.DummyConditionAggressive.
var (
	literalTautologyRe = regexp.MustCompile(`(?i)^\s*('?)(\w+)('?)\s*=\s*('?)(\w+)('?)\s*$`)
)

// DummyConditionChecker flags WHERE clauses that reduce to a tautology,
// the classic "delete where 1=1" or "'a'='a'" defeat of a WHERE guard.
type DummyConditionChecker struct {
	baseChecker
	visitorBase
	cfg *ConfigStore
}

func NewDummyConditionChecker(cfg *ConfigStore) *DummyConditionChecker {
	return &DummyConditionChecker{baseChecker: newBaseChecker("DummyCondition", 11), cfg: cfg}
}

func (c *DummyConditionChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	return dispatch(c, ctx, ctx.Statement.AST)
}

func (c *DummyConditionChecker) visitUpdate(ctx *SqlContext, stmt *sqlparser.Update) []Violation {
	return c.checkWhere(ctx, stmt)
}

func (c *DummyConditionChecker) visitDelete(ctx *SqlContext, stmt *sqlparser.Delete) []Violation {
	return c.checkWhere(ctx, stmt)
}

func (c *DummyConditionChecker) visitSelect(ctx *SqlContext, stmt *sqlparser.Select) []Violation {
	return c.checkWhere(ctx, stmt)
}

func (c *DummyConditionChecker) checkWhere(ctx *SqlContext, stmt sqlparser.Statement) []Violation {
	text, ok := WhereText(stmt)
	if !ok {
		return nil
	}
	if isTautology(text, c.cfg.Load().DummyConditionAggressive) {
		return []Violation{violation(c.id, RiskHigh,
			"WHERE clause reduces to a tautology and matches every row: "+text,
			"replace the condition with one that actually scopes the statement")}
	}
	return nil
}

// isTautology reports whether a WHERE expression body is a self-comparison
// tautology. Baseline mode matches a bare "true" and a quoted or numeric
// literal equal to itself ('a'='a', 1=1); aggressive mode also matches a
// bare identifier equal to itself (a=a) and folds simple numeric-literal
// comparisons (e.g. "2>1").
func isTautology(whereBody string, aggressive bool) bool {
	trimmed := strings.TrimSpace(whereBody)
	if strings.EqualFold(trimmed, "true") {
		return true
	}
	if m := literalTautologyRe.FindStringSubmatch(trimmed); m != nil {
		if strings.EqualFold(m[2], m[5]) {
			quoted := m[1] == "'" || m[4] == "'"
			numeric := strings.Trim(m[2], "0123456789") == ""
			if quoted || numeric || aggressive {
				return true
			}
		}
	}
	if !aggressive {
		return false
	}
	return aggressiveTautology(trimmed)
}

var numericCompareRe = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*(=|<=|>=|<|>)\s*(-?\d+(?:\.\d+)?)\s*$`)

func aggressiveTautology(expr string) bool {
	m := numericCompareRe.FindStringSubmatch(expr)
	if m == nil {
		return false
	}
	a, b := m[1], m[3]
	switch m[2] {
	case "=":
		return a == b
	case "<=", ">=":
		return a == b || compareFolds(a, b, m[2])
	default:
		return compareFolds(a, b, m[2])
	}
}

func compareFolds(a, b, op string) bool {
	af, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return false
	}
	bf, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return false
	}
	switch op {
	case "<":
		return af < bf
	case ">":
		return af > bf
	case "<=":
		return af <= bf
	case ">=":
		return af >= bf
	default:
		return false
	}
}

// DdlOperationChecker flags CREATE/ALTER/DROP/TRUNCATE statements, which
// are out of scope for anything claiming to be a read/write DML statement.
type DdlOperationChecker struct {
	baseChecker
	visitorBase
}

func NewDdlOperationChecker() *DdlOperationChecker {
	return &DdlOperationChecker{baseChecker: newBaseChecker("DdlOperation", 3)}
}

func (c *DdlOperationChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Command != CommandDdl {
		return nil
	}
	action := "DDL"
	if ctx.Statement != nil && ctx.Statement.AST != nil {
		if ddl, ok := ctx.Statement.AST.(*sqlparser.DDL); ok {
			action = ddl.Action
		}
	}
	return []Violation{violation(c.id, RiskCritical,
		"schema-modifying statement ("+action+") detected on a DML execution path",
		"run schema changes through migrations, not the application query path")}
}

// ReadOnlyTableChecker flags any write statement against a table the
// operator has configured as read-only.
type ReadOnlyTableChecker struct {
	baseChecker
	visitorBase
	cfg *ConfigStore
}

func NewReadOnlyTableChecker(cfg *ConfigStore) *ReadOnlyTableChecker {
	return &ReadOnlyTableChecker{baseChecker: newBaseChecker("ReadOnlyTable", 12), cfg: cfg}
}

func (c *ReadOnlyTableChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	switch ctx.Command {
	case CommandInsert, CommandUpdate, CommandDelete:
	default:
		return nil
	}
	readOnly := c.cfg.Load().ReadOnlyTables
	if len(readOnly) == 0 {
		return nil
	}
	for _, t := range TableNames(ctx.Statement.AST) {
		for _, ro := range readOnly {
			if strings.EqualFold(t, ro) {
				return []Violation{violation(c.id, RiskHigh,
					"write statement targets read-only table \""+t+"\"",
					"route writes for this table through its owning service")}
			}
		}
	}
	return nil
}
