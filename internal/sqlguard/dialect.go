// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xwb1989/sqlparser"
)

// Dialect identifies one of the five supported pagination syntaxes.
type Dialect string

const (
	DialectMySQL      Dialect = "mysql"
	DialectPostgreSQL Dialect = "postgresql"
	DialectOracle     Dialect = "oracle"
	DialectSQLServer  Dialect = "sqlserver"
	DialectH2         Dialect = "h2"
)

// DialectAdapter rewrites a top-level plain Select to add or cap pagination,
// using the syntax the configured dialect expects. The underlying AST
// library models only MySQL-family syntax, so TOP and ROWNUM rewrites work
// on the re-serialized SQL text of the plain select body rather than on
// dedicated AST nodes; this mirrors how the grounding parser's own
// SplitStatementToPieces/String round-trip is used elsewhere in this
// package for non-MySQL-shaped constructs.
type DialectAdapter struct {
	Dialect         Dialect
	EnforceMaxLimit bool
	MaxLimit        int64
}

// NewDialectAdapter builds an adapter for the named dialect, stored as
// given. Use ParseDialect to map a configuration string (unknown names map
// to MySQL); an adapter holding an unknown Dialect leaves statements
// untouched in AddPagination.
func NewDialectAdapter(dialect Dialect, enforceMaxLimit bool, maxLimit int64) *DialectAdapter {
	return &DialectAdapter{Dialect: dialect, EnforceMaxLimit: enforceMaxLimit, MaxLimit: maxLimit}
}

// rewritable reports whether stmt is a plain top-level Select eligible for
// pagination rewriting: no set operation, and (for addPagination) no
// existing LIMIT/TOP/ROWNUM.
func rewritable(stmt sqlparser.Statement) (*sqlparser.Select, bool) {
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, false
	}
	return sel, true
}

// ApplyLimit caps an existing numeric LIMIT down to n when it exceeds n.
// Parameterized (non-literal) limits are left untouched, and the rewrite is
// a no-op for anything but a plain top-level Select. handle is never
// mutated — it may be the parser cache's shared, read-only handle, so a
// cap clones the AST first (by re-parsing its serialized text) and returns
// a brand new handle for the caller to use in place of the cached one.
func (d *DialectAdapter) ApplyLimit(handle *StatementHandle, n int64) (*StatementHandle, bool) {
	sel, ok := rewritable(handle.AST)
	if !ok || sel.Limit == nil {
		return handle, false
	}

	info := ParseLimit(handle.AST)
	if !info.Numeric || !info.Present {
		return handle, false
	}
	if info.RowCount <= n {
		return handle, false
	}

	clonedStmt, err := sqlparser.Parse(sqlparser.String(handle.AST))
	if err != nil {
		log.Warn().Err(err).Msg("failed to clone statement for LIMIT capping, leaving statement untouched")
		return handle, false
	}
	clonedSel, ok := clonedStmt.(*sqlparser.Select)
	if !ok || clonedSel.Limit == nil {
		return handle, false
	}
	clonedSel.Limit.Rowcount = sqlparser.NewIntVal([]byte(strconv.FormatInt(n, 10)))

	log.Warn().
		Int64("original_limit", info.RowCount).
		Int64("capped_to", n).
		Str("dialect", string(d.Dialect)).
		Msg("capped oversized LIMIT to configured maximum")

	rewritten := &StatementHandle{
		NormalizedSQL:  handle.NormalizedSQL,
		OriginalSQL:    sqlparser.String(clonedSel),
		Command:        handle.Command,
		AST:            clonedSel,
		StatementCount: handle.StatementCount,
	}
	return rewritten, true
}

// AddPagination adds dialect-appropriate pagination to a plain top-level
// Select that has none. Statements with an existing LIMIT/TOP/ROWNUM, set
// operations, and non-Select statements are left untouched.
func (d *DialectAdapter) AddPagination(handle *StatementHandle, offset, limit int) (sqlText string, rewritten bool) {
	sel, ok := rewritable(handle.AST)
	if !ok {
		return handle.OriginalSQL, false
	}
	if sel.Limit != nil {
		return handle.OriginalSQL, false
	}

	switch d.Dialect {
	case DialectMySQL, DialectPostgreSQL, DialectH2:
		cp := *sel
		cp.Limit = &sqlparser.Limit{Rowcount: sqlparser.NewIntVal([]byte(strconv.Itoa(limit)))}
		if offset > 0 {
			cp.Limit.Offset = sqlparser.NewIntVal([]byte(strconv.Itoa(offset)))
		}
		return sqlparser.String(&cp), true
	case DialectSQLServer:
		return rewriteWithTop(sel, limit), true
	case DialectOracle:
		return rewriteWithRownum(sel, offset, limit), true
	default:
		return handle.OriginalSQL, false
	}
}

var selectKeywordRe = regexp.MustCompile(`(?i)^select\s+(distinct\s+)?`)

// rewriteWithTop inserts "TOP n" immediately after SELECT [DISTINCT] for
// SQL Server. Offset is not representable by TOP alone and is dropped;
// callers needing true keyset/offset pagination on SQL Server are expected
// to use OFFSET/FETCH at the adapter layer, outside this helper's scope.
func rewriteWithTop(sel *sqlparser.Select, limit int) string {
	text := sqlparser.String(sel)
	loc := selectKeywordRe.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[:loc[1]] + fmt.Sprintf("TOP %d ", limit) + text[loc[1]:]
}

// rewriteWithRownum wraps the select body in an outer query filtering on
// ROWNUM, Oracle's pre-12c pagination idiom.
func rewriteWithRownum(sel *sqlparser.Select, offset, limit int) string {
	inner := sqlparser.String(sel)
	if offset <= 0 {
		return fmt.Sprintf("SELECT * FROM (%s) WHERE ROWNUM <= %d", inner, limit)
	}
	return fmt.Sprintf(
		"SELECT * FROM (SELECT inner_q.*, ROWNUM rnum FROM (%s) inner_q WHERE ROWNUM <= %d) WHERE rnum > %d",
		inner, offset+limit, offset,
	)
}

// ParseDialect maps a configuration string to a Dialect, defaulting to
// MySQL for unrecognized input.
func ParseDialect(s string) Dialect {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgreSQL
	case "oracle":
		return DialectOracle
	case "sqlserver", "mssql":
		return DialectSQLServer
	case "h2":
		return DialectH2
	default:
		return DialectMySQL
	}
}
