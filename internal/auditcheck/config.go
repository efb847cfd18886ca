// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package auditcheck

import (
	"os"
	"strconv"
)

// Config holds every audit checker's tunable thresholds. Defaults match
// SPEC_FULL.md §4.9; each can be overridden via environment variable,
// following the teacher's eventprocessor config loading convention.
type Config struct {
	SlowQueryWarnMs      int64
	SlowQueryCriticalMs  int64
	LargeResultCap       int64
	UnboundedReadCap     int64
	HighImpactMediumRows int64
	HighImpactCriticalRows int64
}

// DefaultConfig returns the SPEC_FULL.md §4.9 default thresholds.
func DefaultConfig() Config {
	return Config{
		SlowQueryWarnMs:        1000,
		SlowQueryCriticalMs:    5000,
		LargeResultCap:         5000,
		UnboundedReadCap:       10000,
		HighImpactMediumRows:   1000,
		HighImpactCriticalRows: 10000,
	}
}

// LoadConfig starts from DefaultConfig and overrides any threshold present
// in the environment, mirroring internal/eventprocessor/config.go's
// getEnvInt64 pattern.
func LoadConfig() Config {
	cfg := DefaultConfig()
	cfg.SlowQueryWarnMs = getEnvInt64("AUDITCHECK_SLOW_QUERY_WARN_MS", cfg.SlowQueryWarnMs)
	cfg.SlowQueryCriticalMs = getEnvInt64("AUDITCHECK_SLOW_QUERY_CRITICAL_MS", cfg.SlowQueryCriticalMs)
	cfg.LargeResultCap = getEnvInt64("AUDITCHECK_LARGE_RESULT_CAP", cfg.LargeResultCap)
	cfg.UnboundedReadCap = getEnvInt64("AUDITCHECK_UNBOUNDED_READ_CAP", cfg.UnboundedReadCap)
	cfg.HighImpactMediumRows = getEnvInt64("AUDITCHECK_HIGH_IMPACT_MEDIUM_ROWS", cfg.HighImpactMediumRows)
	cfg.HighImpactCriticalRows = getEnvInt64("AUDITCHECK_HIGH_IMPACT_CRITICAL_ROWS", cfg.HighImpactCriticalRows)
	return cfg
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
