// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package retention

import (
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"daily off-peak", "0 3 * * *", false},
		{"every 5 minutes", "*/5 * * * *", false},
		{"monday at 9am", "0 9 * * 1", false},
		{"first of month at midnight", "0 0 1 * *", false},
		{"weekday hourly", "0 * * * 1-5", false},
		{"multiple specific minutes", "0,15,30,45 * * * *", false},
		{"too few fields", "0 9 * *", true},
		{"too many fields", "0 9 * * * *", true},
		{"invalid minute", "60 9 * * *", true},
		{"invalid hour", "0 24 * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestNextRun_DailyOffPeak(t *testing.T) {
	c, err := ParseCron("0 3 * * *")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}

	after := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	next := c.NextRun(after, time.UTC)

	want := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextRun = %v, want %v", next, want)
	}
}

func TestNextRun_SameDayIfBeforeSchedule(t *testing.T) {
	c, err := ParseCron("0 3 * * *")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}

	after := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	next := c.NextRun(after, time.UTC)

	want := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextRun = %v, want %v", next, want)
	}
}

func TestNextRun_EveryFiveMinutes(t *testing.T) {
	c, err := ParseCron("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}

	after := time.Date(2026, 7, 31, 10, 2, 0, 0, time.UTC)
	next := c.NextRun(after, time.UTC)

	want := time.Date(2026, 7, 31, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextRun = %v, want %v", next, want)
	}
}
