// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package auditcheck

import (
	"testing"
	"time"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/sqlguard"
)

func newTestCache() *sqlguard.ParserCache {
	return sqlguard.NewParserCache(100, time.Minute)
}

func TestSlowQueryChecker_Thresholds(t *testing.T) {
	c := NewSlowQueryChecker(DefaultConfig())

	if score := c.Audit(&auditmodel.AuditEvent{ExecutionTimeMs: 500}); score != nil {
		t.Fatalf("expected no finding under threshold, got %+v", score)
	}
	if score := c.Audit(&auditmodel.AuditEvent{ExecutionTimeMs: 2000}); score == nil || score.Severity != sqlguard.RiskHigh {
		t.Fatalf("expected RiskHigh above warn threshold, got %+v", score)
	}
	if score := c.Audit(&auditmodel.AuditEvent{ExecutionTimeMs: 6000}); score == nil || score.Severity != sqlguard.RiskCritical {
		t.Fatalf("expected RiskCritical above critical threshold, got %+v", score)
	}
}

func TestLargeResultChecker(t *testing.T) {
	c := NewLargeResultChecker(DefaultConfig())
	if score := c.Audit(&auditmodel.AuditEvent{RowsAffected: 100}); score != nil {
		t.Fatalf("expected no finding for small result, got %+v", score)
	}
	if score := c.Audit(&auditmodel.AuditEvent{RowsAffected: 10000}); score == nil || score.Severity != sqlguard.RiskHigh {
		t.Fatalf("expected RiskHigh for large result, got %+v", score)
	}
}

func TestUnboundedReadChecker_OnlyAppliesToSelect(t *testing.T) {
	c := NewUnboundedReadChecker(DefaultConfig())
	if score := c.Audit(&auditmodel.AuditEvent{Command: sqlguard.CommandUpdate, RowsAffected: 50000}); score != nil {
		t.Fatalf("expected UnboundedRead to ignore non-select commands, got %+v", score)
	}
	if score := c.Audit(&auditmodel.AuditEvent{Command: sqlguard.CommandSelect, RowsAffected: 50000}); score == nil {
		t.Fatalf("expected a finding for an unbounded select")
	}
}

func TestActualImpactNoWhereChecker(t *testing.T) {
	c := NewActualImpactNoWhereChecker(newTestCache())

	noWhere := &auditmodel.AuditEvent{SQL: "DELETE FROM orders", Command: sqlguard.CommandDelete, RowsAffected: 50000}
	score := c.Audit(noWhere)
	if score == nil || score.Severity != sqlguard.RiskCritical {
		t.Fatalf("expected RiskCritical for mutation with no WHERE and rows affected, got %+v", score)
	}

	withWhere := &auditmodel.AuditEvent{SQL: "DELETE FROM orders WHERE id = 1", Command: sqlguard.CommandDelete, RowsAffected: 1}
	if score := c.Audit(withWhere); score != nil {
		t.Fatalf("expected no finding when a WHERE clause is present, got %+v", score)
	}

	noImpact := &auditmodel.AuditEvent{SQL: "DELETE FROM orders", Command: sqlguard.CommandDelete, RowsAffected: 0}
	if score := c.Audit(noImpact); score != nil {
		t.Fatalf("expected no finding when no rows were actually affected, got %+v", score)
	}
}

func TestHighImpactMutationChecker_Thresholds(t *testing.T) {
	c := NewHighImpactMutationChecker(DefaultConfig())

	if score := c.Audit(&auditmodel.AuditEvent{Command: sqlguard.CommandUpdate, RowsAffected: 10}); score != nil {
		t.Fatalf("expected no finding for small impact, got %+v", score)
	}
	if score := c.Audit(&auditmodel.AuditEvent{Command: sqlguard.CommandUpdate, RowsAffected: 2000}); score == nil || score.Severity != sqlguard.RiskMedium {
		t.Fatalf("expected RiskMedium, got %+v", score)
	}
	if score := c.Audit(&auditmodel.AuditEvent{Command: sqlguard.CommandDelete, RowsAffected: 50000}); score == nil || score.Severity != sqlguard.RiskCritical {
		t.Fatalf("expected RiskCritical, got %+v", score)
	}
}

func TestErrorPatternChecker_Classification(t *testing.T) {
	c := NewErrorPatternChecker()

	deadlock := "Deadlock found when trying to get lock"
	if score := c.Audit(&auditmodel.AuditEvent{ErrorMessage: &deadlock}); score == nil || score.Severity != sqlguard.RiskHigh {
		t.Fatalf("expected RiskHigh for deadlock pattern, got %+v", score)
	}

	syntax := "You have an error in your SQL syntax"
	if score := c.Audit(&auditmodel.AuditEvent{ErrorMessage: &syntax}); score == nil || score.Severity != sqlguard.RiskMedium {
		t.Fatalf("expected RiskMedium for syntax error pattern, got %+v", score)
	}

	unknown := "connection refused by remote host"
	if score := c.Audit(&auditmodel.AuditEvent{ErrorMessage: &unknown}); score == nil || score.Severity != sqlguard.RiskLow {
		t.Fatalf("expected RiskLow for unclassified error, got %+v", score)
	}

	if score := c.Audit(&auditmodel.AuditEvent{}); score != nil {
		t.Fatalf("expected no finding when there is no error message, got %+v", score)
	}
}

func TestBank_RunReturnsOneResultPerChecker(t *testing.T) {
	bank := DefaultBank(DefaultConfig(), newTestCache())
	event := &auditmodel.AuditEvent{SQL: "SELECT 1", Command: sqlguard.CommandSelect, RowsAffected: 1}

	results := bank.Run(event)
	if len(results) != 6 {
		t.Fatalf("expected 6 checker results, got %d", len(results))
	}
	for _, r := range results {
		if r.Score != nil {
			t.Fatalf("expected a clean select to produce no findings, got %+v from %s", r.Score, r.CheckerID)
		}
	}
}

// Scenario 5 (SPEC_FULL.md §8): unbounded mutation that actually hit rows.
func TestBank_UnboundedMutationScenario(t *testing.T) {
	bank := DefaultBank(DefaultConfig(), newTestCache())
	event := &auditmodel.AuditEvent{SQL: "DELETE FROM orders", Command: sqlguard.CommandDelete, RowsAffected: 50000}

	report := auditmodel.BuildReport(event, bank.Run(event))
	if report.Aggregated.Severity != sqlguard.RiskCritical {
		t.Fatalf("expected aggregated RiskCritical, got %s", report.Aggregated.Severity)
	}
}
