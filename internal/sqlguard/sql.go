// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// ParseError is returned when the SQL text cannot be parsed. Position is
// best-effort; the underlying parser does not always expose one.
type ParseError struct {
	SQL      string
	Position int
	Err      error
}

func (e *ParseError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("sql parse error at position %d: %v", e.Position, e.Err)
	}
	return fmt.Sprintf("sql parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StatementHandle is the parsed, shared, read-only statement the cache
// hands out. Once cached it is never mutated; dialect rewrites operate on
// a cloned AST and return a new handle.
type StatementHandle struct {
	// NormalizedSQL is the lower-cased, whitespace-collapsed text used as
	// the cache key (never used for re-execution).
	NormalizedSQL string
	// OriginalSQL is the exact text the caller supplied.
	OriginalSQL string
	Command     CommandType
	AST         sqlparser.Statement
	// StatementCount is >1 when the parser saw multiple top-level
	// statements separated by ';' (grounds the MultiStatement checker).
	StatementCount int
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeSQL trims and collapses whitespace and lower-cases the text for
// cache-keying purposes only; it is never used as the SQL sent to a driver.
func NormalizeSQL(sql string) string {
	return strings.ToLower(whitespaceRe.ReplaceAllString(strings.TrimSpace(sql), " "))
}

// parseStatement parses raw SQL into a StatementHandle. It first splits on
// top-level statement boundaries (ignoring those inside strings/comments)
// so MultiStatement detection does not depend on the AST parser accepting
// multi-statement batches, then parses the first piece for AST-dependent
// checkers.
func parseStatement(sql string) (*StatementHandle, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &StatementHandle{OriginalSQL: sql, NormalizedSQL: "", Command: CommandUnknown}, nil
	}

	pieces, err := sqlparser.SplitStatementToPieces(trimmed)
	if err != nil {
		return nil, &ParseError{SQL: sql, Err: err}
	}
	nonEmpty := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return &StatementHandle{OriginalSQL: sql, NormalizedSQL: "", Command: CommandUnknown}, nil
	}

	stmt, err := sqlparser.Parse(nonEmpty[0])
	if err != nil {
		return nil, &ParseError{SQL: sql, Err: err}
	}

	return &StatementHandle{
		OriginalSQL:    sql,
		NormalizedSQL:  NormalizeSQL(sql),
		Command:        commandOf(stmt),
		AST:            stmt,
		StatementCount: len(nonEmpty),
	}, nil
}

// bestEffortStatementCount splits sql on top-level statement boundaries
// without requiring it to parse as an AST, for use when building a minimal
// handle after a ParseError — the MultiStatement checker still needs a
// count even though there's no AST to dispatch checkers over.
func bestEffortStatementCount(sql string) int {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return 0
	}
	pieces, err := sqlparser.SplitStatementToPieces(trimmed)
	if err != nil {
		return 1
	}
	count := 0
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return count
}

func commandOf(stmt sqlparser.Statement) CommandType {
	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union:
		return CommandSelect
	case *sqlparser.Insert:
		return CommandInsert
	case *sqlparser.Update:
		return CommandUpdate
	case *sqlparser.Delete:
		return CommandDelete
	case *sqlparser.DDL, *sqlparser.DBDDL:
		return CommandDdl
	case *sqlparser.Show, *sqlparser.Use, *sqlparser.Set, *sqlparser.OtherAdmin:
		return CommandUnknown
	default:
		return CommandUnknown
	}
}

// WhereText returns the canonical re-serialized WHERE expression of an
// Update/Delete/Select statement, or "" if the statement has none. Checkers
// analyze this text rather than walking every AST node type directly,
// keeping pattern matching (tautology detection, field extraction)
// independent of the exact expression-node shape the parser library uses
// internally.
func WhereText(stmt sqlparser.Statement) (text string, hasWhere bool) {
	switch s := stmt.(type) {
	case *sqlparser.Update:
		if s.Where == nil {
			return "", false
		}
		return sqlparser.String(s.Where.Expr), true
	case *sqlparser.Delete:
		if s.Where == nil {
			return "", false
		}
		return sqlparser.String(s.Where.Expr), true
	case *sqlparser.Select:
		if s.Where == nil {
			return "", false
		}
		return sqlparser.String(s.Where.Expr), true
	}
	return "", false
}

// TableNames returns the lower-cased table names referenced by the
// statement's FROM/target clause.
func TableNames(stmt sqlparser.Statement) []string {
	var exprs sqlparser.TableExprs
	switch s := stmt.(type) {
	case *sqlparser.Select:
		exprs = s.From
	case *sqlparser.Update:
		exprs = s.TableExprs
	case *sqlparser.Delete:
		exprs = s.TableExprs
	case *sqlparser.Insert:
		return []string{strings.ToLower(sqlparser.String(s.Table.Name))}
	default:
		return nil
	}

	names := make([]string, 0, len(exprs))
	for _, e := range exprs {
		names = append(names, strings.ToLower(strings.TrimSpace(sqlparser.String(e))))
	}
	return names
}

// HasOrderBy reports whether a Select carries an ORDER BY clause.
func HasOrderBy(stmt sqlparser.Statement) bool {
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return false
	}
	return len(sel.OrderBy) > 0
}

// LimitInfo describes a parsed LIMIT clause. Numeric is false when the
// limit/offset is a bind parameter rather than a literal.
type LimitInfo struct {
	Present  bool
	Numeric  bool
	Offset   int64
	RowCount int64
}

// ParseLimit extracts LIMIT/OFFSET information from a Select statement.
func ParseLimit(stmt sqlparser.Statement) LimitInfo {
	sel, ok := stmt.(*sqlparser.Select)
	if !ok || sel.Limit == nil {
		return LimitInfo{}
	}

	info := LimitInfo{Present: true, Numeric: true}
	if sel.Limit.Offset != nil {
		if v, ok := literalInt(sel.Limit.Offset); ok {
			info.Offset = v
		} else {
			info.Numeric = false
		}
	}
	if sel.Limit.Rowcount != nil {
		if v, ok := literalInt(sel.Limit.Rowcount); ok {
			info.RowCount = v
		} else {
			info.Numeric = false
		}
	}
	return info
}

func literalInt(e sqlparser.Expr) (int64, bool) {
	val, ok := e.(*sqlparser.SQLVal)
	if !ok || val.Type != sqlparser.IntVal {
		return 0, false
	}
	var n int64
	_, err := fmt.Sscanf(string(val.Val), "%d", &n)
	if err != nil {
		return 0, false
	}
	return n, true
}

// HasSetOperation reports whether the statement is a UNION/INTERSECT/EXCEPT.
func HasSetOperation(stmt sqlparser.Statement) (op string, ok bool) {
	u, ok := stmt.(*sqlparser.Union)
	if !ok {
		return "", false
	}
	return u.Type, true
}
