// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"os"
	"strings"
)

// Config selects and connects the storage pair the audit pipeline and
// retention job run against (SPEC_FULL.md §4.11, §6 audit.storage.mode).
// Only the fields relevant to Mode need be set; the rest are ignored.
type Config struct {
	Mode StorageMode

	MySQLDSN           string
	PostgresDSN        string
	SqlitePath         string
	DuckDBPath         string
	ElasticsearchAddrs []string
}

// DefaultConfig returns a single-node sqlite deployment, the lightest mode
// to start from a clean checkout.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeSqlite,
		SqlitePath: "audit.db",
	}
}

// LoadConfig returns DefaultConfig with environment overrides applied.
func LoadConfig() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("AUDIT_STORAGE_MODE"); v != "" {
		cfg.Mode = StorageMode(v)
	}
	if v := os.Getenv("AUDIT_STORAGE_MYSQL_DSN"); v != "" {
		cfg.MySQLDSN = v
	}
	if v := os.Getenv("AUDIT_STORAGE_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("AUDIT_STORAGE_SQLITE_PATH"); v != "" {
		cfg.SqlitePath = v
	}
	if v := os.Getenv("AUDIT_STORAGE_DUCKDB_PATH"); v != "" {
		cfg.DuckDBPath = v
	}
	if v := os.Getenv("AUDIT_STORAGE_ES_ADDRS"); v != "" {
		cfg.ElasticsearchAddrs = strings.Split(v, ",")
	}
	return cfg
}
