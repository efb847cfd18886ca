// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"testing"
	"time"
)

func TestDedupFilter_SuppressesRepeatWithinTTL(t *testing.T) {
	d := NewDedupFilter(10, time.Minute)
	v := violation("NoWhereClause", RiskCritical, "missing WHERE clause", "")

	if !d.ShouldReport("stmt:1", v) {
		t.Fatalf("expected first occurrence to be reported")
	}
	if d.ShouldReport("stmt:1", v) {
		t.Fatalf("expected repeat occurrence within TTL to be suppressed")
	}
}

func TestDedupFilter_DistinctStatementsNotSuppressed(t *testing.T) {
	d := NewDedupFilter(10, time.Minute)
	v := violation("NoWhereClause", RiskCritical, "missing WHERE clause", "")

	if !d.ShouldReport("stmt:1", v) {
		t.Fatalf("expected first statement reported")
	}
	if !d.ShouldReport("stmt:2", v) {
		t.Fatalf("expected distinct statement id to bypass dedup of stmt:1")
	}
}

func TestDedupFilter_DistinctCheckerNotSuppressed(t *testing.T) {
	d := NewDedupFilter(10, time.Minute)
	a := violation("NoWhereClause", RiskCritical, "missing WHERE clause", "")
	b := violation("DummyCondition", RiskHigh, "tautological predicate", "")

	if !d.ShouldReport("stmt:1", a) {
		t.Fatalf("expected first violation reported")
	}
	if !d.ShouldReport("stmt:1", b) {
		t.Fatalf("expected a different checker's violation on the same statement to be reported")
	}
}

func TestDedupFilter_ExpiresAfterTTL(t *testing.T) {
	d := NewDedupFilter(10, 10*time.Millisecond)
	v := violation("NoWhereClause", RiskCritical, "missing WHERE clause", "")

	if !d.ShouldReport("stmt:1", v) {
		t.Fatalf("expected first occurrence reported")
	}
	time.Sleep(30 * time.Millisecond)
	if !d.ShouldReport("stmt:1", v) {
		t.Fatalf("expected occurrence reported again once TTL has elapsed")
	}
}
