// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auditcheck is the audit checker bank (SPEC_FULL.md §4.9): a set
// of stateless, post-execution analyzers run against one AuditEvent,
// producing a RiskScore each. It mirrors internal/sqlguard's Checker
// pattern on the other side of execution.
package auditcheck

import (
	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
)

// Checker is one post-execution analyzer. Returning a nil *RiskScore means
// "no finding" for that checker; it is still represented in the report
// (see auditmodel.BuildReport).
type Checker interface {
	ID() string
	Audit(event *auditmodel.AuditEvent) *auditmodel.RiskScore
}

// Bank runs every registered checker against an event, in registration
// order, and assembles the CheckerResult slice BuildReport expects.
// Checkers run sequentially within a worker per SPEC_FULL.md §4.10 — each
// is cheap, and parallelizing per-checker is not worth the overhead.
type Bank struct {
	checkers []Checker
}

// NewBank builds a bank from the given checkers, preserving order.
func NewBank(checkers ...Checker) *Bank {
	return &Bank{checkers: checkers}
}

// Run audits event through every checker and returns one CheckerResult per
// checker (score is nil when that checker found nothing).
func (b *Bank) Run(event *auditmodel.AuditEvent) []auditmodel.CheckerResult {
	results := make([]auditmodel.CheckerResult, 0, len(b.checkers))
	for _, c := range b.checkers {
		results = append(results, auditmodel.CheckerResult{
			CheckerID: c.ID(),
			Score:     c.Audit(event),
		})
	}
	return results
}
