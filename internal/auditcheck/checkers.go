// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package auditcheck

import (
	"regexp"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/sqlguard"
)

// SlowQueryChecker flags statements whose measured execution time exceeds
// a warn or critical threshold.
type SlowQueryChecker struct {
	warnMs, criticalMs int64
}

func NewSlowQueryChecker(cfg Config) *SlowQueryChecker {
	return &SlowQueryChecker{warnMs: cfg.SlowQueryWarnMs, criticalMs: cfg.SlowQueryCriticalMs}
}

func (c *SlowQueryChecker) ID() string { return "SlowQuery" }

func (c *SlowQueryChecker) Audit(event *auditmodel.AuditEvent) *auditmodel.RiskScore {
	ms := event.ExecutionTimeMs
	switch {
	case ms > c.criticalMs:
		return &auditmodel.RiskScore{
			Severity:      sqlguard.RiskCritical,
			Confidence:    95,
			Justification: "execution time exceeded the critical slow-query threshold",
			ImpactMetrics: map[string]float64{"execution_time_ms": float64(ms)},
		}
	case ms > c.warnMs:
		return &auditmodel.RiskScore{
			Severity:      sqlguard.RiskHigh,
			Confidence:    80,
			Justification: "execution time exceeded the slow-query threshold",
			ImpactMetrics: map[string]float64{"execution_time_ms": float64(ms)},
		}
	default:
		return nil
	}
}

// LargeResultChecker flags a result set larger than a configured cap,
// regardless of statement shape.
type LargeResultChecker struct {
	cap int64
}

func NewLargeResultChecker(cfg Config) *LargeResultChecker {
	return &LargeResultChecker{cap: cfg.LargeResultCap}
}

func (c *LargeResultChecker) ID() string { return "LargeResult" }

func (c *LargeResultChecker) Audit(event *auditmodel.AuditEvent) *auditmodel.RiskScore {
	if event.RowsAffected <= c.cap {
		return nil
	}
	return &auditmodel.RiskScore{
		Severity:      sqlguard.RiskHigh,
		Confidence:    85,
		Justification: "result set exceeded the configured size cap",
		ImpactMetrics: map[string]float64{"row_count": float64(event.RowsAffected)},
	}
}

// UnboundedReadChecker flags a Select whose result set exceeds a hard cap
// well above LargeResult's, catching reads nobody meant to page at all.
type UnboundedReadChecker struct {
	cap int64
}

func NewUnboundedReadChecker(cfg Config) *UnboundedReadChecker {
	return &UnboundedReadChecker{cap: cfg.UnboundedReadCap}
}

func (c *UnboundedReadChecker) ID() string { return "UnboundedRead" }

func (c *UnboundedReadChecker) Audit(event *auditmodel.AuditEvent) *auditmodel.RiskScore {
	if event.Command != sqlguard.CommandSelect || event.RowsAffected <= c.cap {
		return nil
	}
	return &auditmodel.RiskScore{
		Severity:      sqlguard.RiskHigh,
		Confidence:    90,
		Justification: "select statement returned an unbounded number of rows",
		ImpactMetrics: map[string]float64{"row_count": float64(event.RowsAffected)},
	}
}

// ActualImpactNoWhereChecker flags a mutation that both lacked a WHERE
// clause and actually affected rows — the prevention layer's NoWhereClause
// checker warns before execution; this confirms the blast radius after.
type ActualImpactNoWhereChecker struct {
	cache *sqlguard.ParserCache
}

func NewActualImpactNoWhereChecker(cache *sqlguard.ParserCache) *ActualImpactNoWhereChecker {
	return &ActualImpactNoWhereChecker{cache: cache}
}

func (c *ActualImpactNoWhereChecker) ID() string { return "ActualImpactNoWhere" }

func (c *ActualImpactNoWhereChecker) Audit(event *auditmodel.AuditEvent) *auditmodel.RiskScore {
	if event.RowsAffected <= 0 {
		return nil
	}
	if event.Command != sqlguard.CommandUpdate && event.Command != sqlguard.CommandDelete {
		return nil
	}

	handle, err := c.cache.Get(event.SQL)
	if err != nil {
		return &auditmodel.RiskScore{
			Severity:      sqlguard.RiskMedium,
			Confidence:    50,
			Justification: "analysis failed: statement could not be parsed",
		}
	}
	if _, hasWhere := sqlguard.WhereText(handle.AST); hasWhere {
		return nil
	}
	return &auditmodel.RiskScore{
		Severity:      sqlguard.RiskCritical,
		Confidence:    95,
		Justification: "mutation without a WHERE clause affected rows",
		ImpactMetrics: map[string]float64{"rows_affected": float64(event.RowsAffected)},
	}
}

// HighImpactMutationChecker flags a mutation whose rowsAffected crosses a
// medium or critical threshold, independent of whether a WHERE was present
// — a correctly scoped mutation can still be high-impact.
type HighImpactMutationChecker struct {
	mediumRows, criticalRows int64
}

func NewHighImpactMutationChecker(cfg Config) *HighImpactMutationChecker {
	return &HighImpactMutationChecker{mediumRows: cfg.HighImpactMediumRows, criticalRows: cfg.HighImpactCriticalRows}
}

func (c *HighImpactMutationChecker) ID() string { return "HighImpactMutation" }

func (c *HighImpactMutationChecker) Audit(event *auditmodel.AuditEvent) *auditmodel.RiskScore {
	if event.Command != sqlguard.CommandUpdate && event.Command != sqlguard.CommandDelete {
		return nil
	}
	switch {
	case event.RowsAffected > c.criticalRows:
		return &auditmodel.RiskScore{
			Severity:      sqlguard.RiskCritical,
			Confidence:    95,
			Justification: "mutation affected rows above the critical impact threshold",
			ImpactMetrics: map[string]float64{"rows_affected": float64(event.RowsAffected)},
		}
	case event.RowsAffected > c.mediumRows:
		return &auditmodel.RiskScore{
			Severity:      sqlguard.RiskMedium,
			Confidence:    75,
			Justification: "mutation affected rows above the medium impact threshold",
			ImpactMetrics: map[string]float64{"rows_affected": float64(event.RowsAffected)},
		}
	default:
		return nil
	}
}

// ErrorPatternChecker classifies errorMessage against known failure
// signatures. Deadlock/lock-wait/connection-timeout patterns are the most
// actionable (High); syntax errors are Medium; anything else that still
// errored is Low.
type ErrorPatternChecker struct {
	highPatterns   *regexp.Regexp
	mediumPatterns *regexp.Regexp
}

func NewErrorPatternChecker() *ErrorPatternChecker {
	return &ErrorPatternChecker{
		highPatterns:   regexp.MustCompile(`(?i)deadlock|lock wait timeout|connection timeout|connection timed out`),
		mediumPatterns: regexp.MustCompile(`(?i)syntax error|you have an error in your sql syntax`),
	}
}

func (c *ErrorPatternChecker) ID() string { return "ErrorPattern" }

func (c *ErrorPatternChecker) Audit(event *auditmodel.AuditEvent) *auditmodel.RiskScore {
	if event.ErrorMessage == nil || *event.ErrorMessage == "" {
		return nil
	}
	msg := *event.ErrorMessage
	switch {
	case c.highPatterns.MatchString(msg):
		return &auditmodel.RiskScore{Severity: sqlguard.RiskHigh, Confidence: 85, Justification: "error matches a deadlock/lock-wait/connection-timeout pattern"}
	case c.mediumPatterns.MatchString(msg):
		return &auditmodel.RiskScore{Severity: sqlguard.RiskMedium, Confidence: 70, Justification: "error matches a SQL syntax error pattern"}
	default:
		return &auditmodel.RiskScore{Severity: sqlguard.RiskLow, Confidence: 40, Justification: "execution reported an unclassified error"}
	}
}

// DefaultBank wires the six scoped checkers with cfg's thresholds, sharing
// cache for the one checker that needs a parsed AST.
func DefaultBank(cfg Config, cache *sqlguard.ParserCache) *Bank {
	return NewBank(
		NewSlowQueryChecker(cfg),
		NewLargeResultChecker(cfg),
		NewUnboundedReadChecker(cfg),
		NewActualImpactNoWhereChecker(cache),
		NewHighImpactMutationChecker(cfg),
		NewErrorPatternChecker(),
	)
}
