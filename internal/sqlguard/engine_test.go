// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import "testing"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := NewConfigStore(DefaultCheckerConfig())
	return NewEngine(store)
}

// Scenario 1 (SPEC_FULL.md §8): missing WHERE on UPDATE.
func TestValidate_MissingWhereOnUpdate(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{
		SQL:         "UPDATE user SET status = 'X'",
		StatementID: "test:db:1",
	})

	if result.RiskLevel != RiskCritical {
		t.Fatalf("expected RiskCritical, got %s", result.RiskLevel)
	}
	if len(result.Violations) != 1 {
		t.Fatalf("expected exactly one violation, got %d: %+v", len(result.Violations), result.Violations)
	}
	if result.Violations[0].CheckerID != "NoWhereClause" {
		t.Fatalf("expected NoWhereClause, got %s", result.Violations[0].CheckerID)
	}
}

// Scenario 2: dummy predicate.
func TestValidate_DummyCondition(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{
		SQL:         "SELECT * FROM user WHERE 1=1",
		StatementID: "test:db:2",
	})

	if result.RiskLevel != RiskHigh {
		t.Fatalf("expected RiskHigh, got %s", result.RiskLevel)
	}
	found := false
	for _, v := range result.Violations {
		if v.CheckerID == "DummyCondition" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a DummyCondition violation, got %+v", result.Violations)
	}
}

// Scenario 3: logical pagination trap — row bounds supplied out-of-band
// with no LIMIT in the SQL text.
func TestValidate_LogicalPaginationTrap(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{
		SQL:         "SELECT * FROM big_table",
		RowBounds:   &RowBounds{Offset: 0, Limit: 20},
		StatementID: "test:db:3",
	})

	if result.RiskLevel != RiskCritical {
		t.Fatalf("expected RiskCritical, got %s", result.RiskLevel)
	}
	found := false
	for _, v := range result.Violations {
		if v.CheckerID == "LogicalPagination" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a LogicalPagination violation, got %+v", result.Violations)
	}
}

func TestValidate_EmptySQLIsSafe(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{SQL: ""})
	if result.RiskLevel != RiskSafe || len(result.Violations) != 0 {
		t.Fatalf("expected Safe with no violations, got %s / %+v", result.RiskLevel, result.Violations)
	}
	if !result.Passed() {
		t.Fatalf("expected Passed() true for empty SQL")
	}
}

func TestValidate_ParseErrorDegradesToMedium(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{SQL: "SELEKT %%% FROM (((", StatementID: "test:db:4"})

	if result.RiskLevel != RiskMedium {
		t.Fatalf("expected RiskMedium on parse failure, got %s", result.RiskLevel)
	}
	if len(result.Violations) != 1 || result.Violations[0].CheckerID != "ParseError" {
		t.Fatalf("expected single ParseError violation, got %+v", result.Violations)
	}
}

// A parse failure must still run the regex-only checkers (SPEC_FULL.md
// §4.6 step 2): a payload shaped to defeat the AST parser while carrying
// an INTO OUTFILE clause should be caught by IntoOutfileChecker even
// though NoWhereClause/DummyCondition and the rest of the AST-dependent
// bank stay silent.
func TestValidate_ParseErrorStillRunsRegexCheckers(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{
		SQL:         "SELEKT %%% INTO OUTFILE '/tmp/x' FROM (((",
		StatementID: "test:db:4b",
	})

	if result.RiskLevel != RiskCritical {
		t.Fatalf("expected RiskCritical from IntoOutfile surviving the parse failure, got %s", result.RiskLevel)
	}
	var sawIntoOutfile, sawParseError bool
	for _, v := range result.Violations {
		switch v.CheckerID {
		case "IntoOutfile":
			sawIntoOutfile = true
		case "ParseError":
			sawParseError = true
		}
	}
	if !sawIntoOutfile {
		t.Fatalf("expected IntoOutfile violation on parse failure, got %+v", result.Violations)
	}
	if !sawParseError {
		t.Fatalf("expected the analysis-failed ParseError violation to still be appended, got %+v", result.Violations)
	}
}

// Multi-statement (stacked query) injection shape.
func TestValidate_MultiStatement(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{
		SQL:         "SELECT 1; DROP TABLE user",
		StatementID: "test:db:5",
	})
	if result.RiskLevel != RiskCritical {
		t.Fatalf("expected RiskCritical, got %s", result.RiskLevel)
	}
}

// I1: riskLevel is always the max over violations.
func TestValidate_RiskLevelIsMaxOfViolations(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{
		SQL:         "DELETE FROM user",
		StatementID: "test:db:6",
	})
	max := RiskSafe
	for _, v := range result.Violations {
		if v.Level > max {
			max = v.Level
		}
	}
	if result.RiskLevel != max {
		t.Fatalf("riskLevel %s does not equal max violation level %s", result.RiskLevel, max)
	}
}

// I2 (within this test's scope): parsing identical SQL twice through the
// engine's shared cache returns a handle carrying identical derived data.
func TestValidate_DeterministicAcrossRepeatedCalls(t *testing.T) {
	e := newTestEngine(t)
	ctx := func() *SqlContext {
		return &SqlContext{SQL: "UPDATE user SET status = 'X' WHERE id = 1", StatementID: "test:db:7"}
	}
	first := e.Validate(ctx())
	second := e.Validate(ctx())
	if first.RiskLevel != second.RiskLevel {
		t.Fatalf("expected deterministic risk level across calls, got %s then %s", first.RiskLevel, second.RiskLevel)
	}
}

func TestValidate_DeniedTable(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{
		SQL:         "SELECT * FROM sys_config WHERE id = 1",
		StatementID: "test:db:8",
	})
	if result.RiskLevel != RiskCritical {
		t.Fatalf("expected RiskCritical for denylisted table, got %s", result.RiskLevel)
	}
}

func TestValidate_DangerousFunction(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{
		SQL:         "SELECT load_file('/etc/passwd')",
		StatementID: "test:db:9",
	})
	if result.RiskLevel != RiskCritical {
		t.Fatalf("expected RiskCritical for dangerous function, got %s", result.RiskLevel)
	}
}

func TestValidate_IntoOutfile(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{
		SQL:         "SELECT * FROM user INTO OUTFILE '/tmp/dump.csv'",
		StatementID: "test:db:10",
	})
	if result.RiskLevel != RiskCritical {
		t.Fatalf("expected RiskCritical for INTO OUTFILE, got %s", result.RiskLevel)
	}
}

func TestValidate_ReadOnlyTableWrite(t *testing.T) {
	cfg := DefaultCheckerConfig()
	cfg.ReadOnlyTables = []string{"ledger"}
	e := NewEngine(NewConfigStore(cfg))

	result := e.Validate(&SqlContext{
		SQL:         "UPDATE ledger SET balance = 0 WHERE id = 1",
		StatementID: "test:db:11",
	})
	found := false
	for _, v := range result.Violations {
		if v.CheckerID == "ReadOnlyTable" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ReadOnlyTable violation, got %+v", result.Violations)
	}
}

func TestValidate_DeepPaginationAndLargePageSize(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{
		SQL:         "SELECT * FROM orders ORDER BY id LIMIT 5000 OFFSET 50000",
		StatementID: "test:db:12",
	})
	var ids []string
	for _, v := range result.Violations {
		ids = append(ids, v.CheckerID)
	}
	hasDeep, hasLarge := false, false
	for _, id := range ids {
		if id == "DeepPagination" {
			hasDeep = true
		}
		if id == "LargePageSize" {
			hasLarge = true
		}
	}
	if !hasDeep || !hasLarge {
		t.Fatalf("expected DeepPagination and LargePageSize violations, got %+v", ids)
	}
}

func TestValidate_MissingOrderBy(t *testing.T) {
	e := newTestEngine(t)
	result := e.Validate(&SqlContext{
		SQL:         "SELECT * FROM orders LIMIT 10",
		StatementID: "test:db:13",
	})
	found := false
	for _, v := range result.Violations {
		if v.CheckerID == "MissingOrderBy" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected MissingOrderBy violation, got %+v", result.Violations)
	}
}

func TestValidate_NoPaginationOnLargeTable(t *testing.T) {
	cfg := DefaultCheckerConfig()
	cfg.LargeTables = []string{"events"}
	e := NewEngine(NewConfigStore(cfg))

	result := e.Validate(&SqlContext{
		SQL:         "SELECT * FROM events",
		StatementID: "test:db:14",
	})
	found := false
	for _, v := range result.Violations {
		if v.CheckerID == "NoPagination" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected NoPagination violation, got %+v", result.Violations)
	}
}

func TestValidate_DisabledCheckerDoesNotFire(t *testing.T) {
	cfg := DefaultCheckerConfig()
	cfg.Enabled = map[string]bool{"NoWhereClause": false}
	e := NewEngine(NewConfigStore(cfg))

	result := e.Validate(&SqlContext{
		SQL:         "UPDATE user SET status = 'X'",
		StatementID: "test:db:15",
	})
	for _, v := range result.Violations {
		if v.CheckerID == "NoWhereClause" {
			t.Fatalf("disabled checker fired: %+v", v)
		}
	}
}
