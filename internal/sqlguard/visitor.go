// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import "github.com/xwb1989/sqlparser"

// StatementVisitor is implemented by anything that wants to react to a
// specific statement shape without performing its own type switch. Every
// method has a default no-op via visitorBase so a checker overrides only
// what it cares about.
type StatementVisitor interface {
	visitSelect(ctx *SqlContext, stmt *sqlparser.Select) []Violation
	visitUpdate(ctx *SqlContext, stmt *sqlparser.Update) []Violation
	visitDelete(ctx *SqlContext, stmt *sqlparser.Delete) []Violation
	visitInsert(ctx *SqlContext, stmt *sqlparser.Insert) []Violation
	visitDDL(ctx *SqlContext, stmt *sqlparser.DDL) []Violation
	visitOther(ctx *SqlContext, stmt sqlparser.Statement) []Violation
}

// visitorBase gives every embedding checker a no-op implementation of each
// visit method; checkers override only the ones their rule needs.
type visitorBase struct{}

func (visitorBase) visitSelect(*SqlContext, *sqlparser.Select) []Violation { return nil }
func (visitorBase) visitUpdate(*SqlContext, *sqlparser.Update) []Violation { return nil }
func (visitorBase) visitDelete(*SqlContext, *sqlparser.Delete) []Violation { return nil }
func (visitorBase) visitInsert(*SqlContext, *sqlparser.Insert) []Violation { return nil }
func (visitorBase) visitDDL(*SqlContext, *sqlparser.DDL) []Violation      { return nil }
func (visitorBase) visitOther(*SqlContext, sqlparser.Statement) []Violation {
	return nil
}

// dispatch inspects stmt's concrete type and routes to the matching visit
// method. NoWhereClause, DummyCondition, BlacklistField and WhitelistField
// route through it; the pagination checkers and DdlOperationChecker
// type-assert ctx.Statement.AST themselves.
func dispatch(v StatementVisitor, ctx *SqlContext, stmt sqlparser.Statement) []Violation {
	if stmt == nil {
		return v.visitOther(ctx, stmt)
	}
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return v.visitSelect(ctx, s)
	case *sqlparser.Update:
		return v.visitUpdate(ctx, s)
	case *sqlparser.Delete:
		return v.visitDelete(ctx, s)
	case *sqlparser.Insert:
		return v.visitInsert(ctx, s)
	case *sqlparser.DDL:
		return v.visitDDL(ctx, s)
	default:
		return v.visitOther(ctx, stmt)
	}
}
