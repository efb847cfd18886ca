// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"strings"
	"testing"
)

func parsedHandle(t *testing.T, sql string) *StatementHandle {
	t.Helper()
	h, err := parseStatement(sql)
	if err != nil {
		t.Fatalf("unexpected parse error for %q: %v", sql, err)
	}
	return h
}

func TestDialectAdapter_ApplyLimitCapsOversizedLimit(t *testing.T) {
	d := NewDialectAdapter(DialectMySQL, true, 100)
	h := parsedHandle(t, "SELECT * FROM orders LIMIT 5000")

	capped, rewritten := d.ApplyLimit(h, 100)
	if !rewritten {
		t.Fatalf("expected ApplyLimit to report a rewrite")
	}
	if capped == h {
		t.Fatalf("expected a new handle, not the cached one, to be returned")
	}
	info := ParseLimit(capped.AST)
	if info.RowCount != 100 {
		t.Fatalf("expected capped row count 100, got %d", info.RowCount)
	}

	// The original, cached handle must be untouched.
	original := ParseLimit(h.AST)
	if original.RowCount != 5000 {
		t.Fatalf("expected cached handle's row count to remain 5000, got %d", original.RowCount)
	}
}

func TestDialectAdapter_ApplyLimitLeavesSmallLimitAlone(t *testing.T) {
	d := NewDialectAdapter(DialectMySQL, true, 100)
	h := parsedHandle(t, "SELECT * FROM orders LIMIT 10")

	if _, rewritten := d.ApplyLimit(h, 100); rewritten {
		t.Fatalf("expected no rewrite when limit is already under the cap")
	}
}

func TestDialectAdapter_AddPaginationMySQL(t *testing.T) {
	d := NewDialectAdapter(DialectMySQL, false, 0)
	h := parsedHandle(t, "SELECT * FROM orders")

	sql, rewritten := d.AddPagination(h, 0, 20)
	if !rewritten {
		t.Fatalf("expected pagination to be added")
	}
	if !strings.Contains(strings.ToLower(sql), "limit 20") {
		t.Fatalf("expected LIMIT clause in rewritten SQL, got %q", sql)
	}
}

func TestDialectAdapter_AddPaginationSQLServerUsesTop(t *testing.T) {
	d := NewDialectAdapter(DialectSQLServer, false, 0)
	h := parsedHandle(t, "SELECT * FROM orders")

	sql, rewritten := d.AddPagination(h, 0, 20)
	if !rewritten {
		t.Fatalf("expected pagination to be added")
	}
	if !strings.Contains(strings.ToUpper(sql), "TOP 20") {
		t.Fatalf("expected TOP 20 in rewritten SQL, got %q", sql)
	}
}

func TestDialectAdapter_AddPaginationOracleUsesRownum(t *testing.T) {
	d := NewDialectAdapter(DialectOracle, false, 0)
	h := parsedHandle(t, "SELECT * FROM orders")

	sql, rewritten := d.AddPagination(h, 40, 20)
	if !rewritten {
		t.Fatalf("expected pagination to be added")
	}
	if !strings.Contains(strings.ToUpper(sql), "ROWNUM") {
		t.Fatalf("expected ROWNUM wrap in rewritten SQL, got %q", sql)
	}
}

func TestDialectAdapter_AddPaginationNoopWhenLimitPresent(t *testing.T) {
	d := NewDialectAdapter(DialectMySQL, false, 0)
	h := parsedHandle(t, "SELECT * FROM orders LIMIT 5")

	_, rewritten := d.AddPagination(h, 0, 20)
	if rewritten {
		t.Fatalf("expected no-op when a LIMIT already exists")
	}
}

func TestParseDialect_DefaultsToMySQL(t *testing.T) {
	if got := ParseDialect("nonsense"); got != DialectMySQL {
		t.Fatalf("expected fallback to mysql, got %s", got)
	}
	if got := ParseDialect("PostgreSQL"); got != DialectPostgreSQL {
		t.Fatalf("expected postgresql, got %s", got)
	}
}
