// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package auditmodel

import (
	"fmt"
	"time"

	"github.com/wmenjoy/sql-tools-sub019/internal/sqlguard"
)

// RiskScore is the uniform output shape of every audit checker: severity
// plus the confidence and narrative that justify it, and an open metrics
// map for whatever numeric evidence the checker wants to attach (latency,
// row counts, threshold crossed).
type RiskScore struct {
	Severity      sqlguard.RiskLevel `json:"severity"`
	Confidence    int                `json:"confidence"`
	Justification string             `json:"justification"`
	ImpactMetrics map[string]float64 `json:"impactMetrics,omitempty"`
}

// CheckerResult pairs one audit checker's verdict with its identity. A nil
// Score means "no finding" for that checker; the checker still appears in
// the report so "at least one CheckerResult per report" holds even when
// every checker came back clean.
type CheckerResult struct {
	CheckerID string     `json:"checkerId"`
	Score     *RiskScore `json:"score"`
}

// AuditReport is the stored analytic record produced by one pass of the
// audit checker bank over one AuditEvent.
type AuditReport struct {
	ReportID   string          `json:"reportId"`
	SqlID      string          `json:"sqlId"`
	Event      *AuditEvent     `json:"event"`
	Results    []CheckerResult `json:"results"`
	Aggregated RiskScore       `json:"aggregatedRiskScore"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// timeBucket is the width NewReportID truncates event timestamps to. Reports
// for the same sqlId within the same bucket collapse to the same reportId,
// which is what makes storage writes idempotent under at-least-once
// redelivery.
const timeBucket = time.Minute

// NewReportID derives a deterministic reportId from sqlId and the event
// timestamp: {sqlId}:{bucketUnixSeconds}. Re-delivery of the same event
// recomputes the identical id, so a storage writer's upsert-on-conflict
// never creates a duplicate row.
func NewReportID(sqlID string, at time.Time) string {
	bucket := at.UTC().Truncate(timeBucket).Unix()
	return fmt.Sprintf("%s:%d", sqlID, bucket)
}

// BuildReport aggregates a set of checker results into an AuditReport. The
// aggregated severity is the max across all non-nil scores (Safe if every
// checker returned no finding), matching the ValidationResult aggregation
// rule in the prevention engine.
func BuildReport(event *AuditEvent, results []CheckerResult) *AuditReport {
	agg := RiskScore{Severity: sqlguard.RiskSafe, Justification: "no findings"}
	for _, r := range results {
		if r.Score == nil {
			continue
		}
		if r.Score.Severity > agg.Severity {
			agg = RiskScore{
				Severity:      r.Score.Severity,
				Confidence:    r.Score.Confidence,
				Justification: r.Score.Justification,
			}
		}
	}

	return &AuditReport{
		ReportID:   NewReportID(event.SqlID, event.Timestamp),
		SqlID:      event.SqlID,
		Event:      event,
		Results:    results,
		Aggregated: agg,
		CreatedAt:  time.Now().UTC(),
	}
}
