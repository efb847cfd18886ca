// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"strings"

	"github.com/xwb1989/sqlparser"
)

// BlacklistFieldChecker flags a WHERE clause that filters *only* on
// low-cardinality fields configured as blacklisted (status, deleted, ...).
// Such a filter commonly still selects a huge fraction of the table; it
// looks scoped but behaves like an unbounded scan.
type BlacklistFieldChecker struct {
	baseChecker
	visitorBase
	cfg *ConfigStore
}

func NewBlacklistFieldChecker(cfg *ConfigStore) *BlacklistFieldChecker {
	return &BlacklistFieldChecker{baseChecker: newBaseChecker("BlacklistField", 30), cfg: cfg}
}

func (c *BlacklistFieldChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	return dispatch(c, ctx, ctx.Statement.AST)
}

func (c *BlacklistFieldChecker) visitSelect(ctx *SqlContext, stmt *sqlparser.Select) []Violation {
	return c.evaluate(stmt)
}

func (c *BlacklistFieldChecker) visitUpdate(ctx *SqlContext, stmt *sqlparser.Update) []Violation {
	return c.evaluate(stmt)
}

func (c *BlacklistFieldChecker) visitDelete(ctx *SqlContext, stmt *sqlparser.Delete) []Violation {
	return c.evaluate(stmt)
}

func (c *BlacklistFieldChecker) evaluate(stmt sqlparser.Statement) []Violation {
	text, ok := WhereText(stmt)
	if !ok {
		return nil
	}
	blacklist := c.cfg.Load().BlacklistFields
	if len(blacklist) == 0 {
		return nil
	}

	fields := whereFieldNames(text)
	if len(fields) == 0 {
		return nil
	}
	if !allBlacklisted(fields, blacklist) {
		return nil
	}

	level := RiskMedium
	if len(fields) == 1 {
		level = RiskHigh
	}
	return []Violation{violation(c.id, level,
		"WHERE clause filters only on low-cardinality field(s): "+strings.Join(fields, ", "),
		"add a selective, high-cardinality predicate (e.g. an id or indexed key)")}
}

// whereFieldNames does a best-effort extraction of bare column identifiers
// referenced in a WHERE expression's re-serialized text, by splitting on
// boolean connectives and taking the left-hand side of each comparison.
// It intentionally does not attempt full expression parsing; the caller
// only needs a coarse "which columns were touched" signal.
func whereFieldNames(whereText string) []string {
	clauses := splitBoolean(whereText)
	var fields []string
	for _, clause := range clauses {
		name := leftHandIdentifier(clause)
		if name != "" {
			fields = append(fields, name)
		}
	}
	return fields
}

func splitBoolean(expr string) []string {
	parts := []string{expr}
	for _, sep := range []string{" and ", " AND ", " or ", " OR "} {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}
	return parts
}

func leftHandIdentifier(clause string) string {
	clause = strings.TrimSpace(clause)
	clause = strings.Trim(clause, "()")
	for _, op := range []string{"!=", "<=", ">=", "<>", "=", "<", ">", " in ", " is "} {
		if idx := strings.Index(strings.ToLower(clause), op); idx > 0 {
			lhs := strings.TrimSpace(clause[:idx])
			if isIdentifier(lhs) {
				return strings.ToLower(stripTableQualifier(lhs))
			}
			return ""
		}
	}
	return ""
}

func stripTableQualifier(s string) string {
	if idx := strings.LastIndex(s, "."); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '.'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && isDigit {
			return false
		}
		if !isAlpha && !isDigit {
			return false
		}
	}
	return true
}

func allBlacklisted(fields, blacklist []string) bool {
	for _, f := range fields {
		matched := false
		for _, b := range blacklist {
			if strings.EqualFold(f, b) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// WhitelistFieldChecker flags "SELECT *" against tables the operator has
// marked as requiring explicit column projection (often because the table
// carries sensitive or wide columns that should never be fetched blindly).
type WhitelistFieldChecker struct {
	baseChecker
	visitorBase
	cfg *ConfigStore
}

func NewWhitelistFieldChecker(cfg *ConfigStore) *WhitelistFieldChecker {
	return &WhitelistFieldChecker{baseChecker: newBaseChecker("WhitelistField", 31), cfg: cfg}
}

func (c *WhitelistFieldChecker) Check(ctx *SqlContext) []Violation {
	if ctx.Statement == nil || ctx.Statement.AST == nil {
		return nil
	}
	return dispatch(c, ctx, ctx.Statement.AST)
}

func (c *WhitelistFieldChecker) visitSelect(ctx *SqlContext, stmt *sqlparser.Select) []Violation {
	required := c.cfg.Load().WhitelistTables
	if len(required) == 0 || !isSelectStar(stmt) {
		return nil
	}
	for _, t := range TableNames(stmt) {
		for _, req := range required {
			if strings.EqualFold(t, req) {
				return []Violation{violation(c.id, RiskMedium,
					"SELECT * against whitelist-required table \""+t+"\"",
					"project only the specific columns the caller needs")}
			}
		}
	}
	return nil
}

func isSelectStar(sel *sqlparser.Select) bool {
	for _, expr := range sel.SelectExprs {
		if _, ok := expr.(*sqlparser.StarExpr); ok {
			return true
		}
	}
	return false
}
