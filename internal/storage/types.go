// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds the selectable metadata-store / log-store pairs
// the audit pipeline writes AuditReports to, and the retention job reads
// and prunes from (SPEC_FULL.md §4.11).
package storage

import (
	"context"
	"time"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
)

// LogStore is the time-series side of a storage pair: it persists whole
// AuditReports (the SQL text, the execution outcome, the checker findings)
// and supports the range queries the retention job and any reporting UI
// need.
type LogStore interface {
	Log(ctx context.Context, report *auditmodel.AuditReport) error
	LogBatch(ctx context.Context, reports []*auditmodel.AuditReport) error
	FindByTimeRange(ctx context.Context, start, end time.Time) ([]*auditmodel.AuditReport, error)
	CountByTimeRange(ctx context.Context, start, end time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// MetadataStore is the relational side of a storage pair: lighter-weight
// lookups keyed by statement or report identity rather than a time range,
// backed by a schema-migrated relational database.
type MetadataStore interface {
	Save(ctx context.Context, report *auditmodel.AuditReport) error
	FindReport(ctx context.Context, reportID string) (*auditmodel.AuditReport, error)
	FindByStatementID(ctx context.Context, statementID string) ([]*auditmodel.AuditReport, error)
	Close() error
}

// StorageMode selects one metadata-store/log-store pair from the
// deployment options SPEC_FULL.md §4.11 lists. Every mode pairs a
// relational metadata store with a log store tuned for time-series scans;
// EsOnly and Sqlite use the same backend for both roles.
type StorageMode string

const (
	// ModeMysqlEs pairs MySQL metadata with an Elasticsearch log store.
	ModeMysqlEs StorageMode = "mysql_es"
	// ModeMysqlOnly uses MySQL for both roles.
	ModeMysqlOnly StorageMode = "mysql_only"
	// ModeFullPgClickhouse pairs Postgres metadata with a ClickHouse-class
	// columnar log store. DuckDB stands in for ClickHouse here: both are
	// embedded columnar engines with the same SQL-over-Parquet shape, and
	// the examples pack carries no ClickHouse driver.
	ModeFullPgClickhouse StorageMode = "full_pg_clickhouse"
	// ModePgOnly uses Postgres for the metadata role and an embedded DuckDB
	// file (Config.DuckDBPath) for the log role.
	ModePgOnly StorageMode = "pg_only"
	// ModeSqlite uses SQLite for both roles, for single-node deployments.
	ModeSqlite StorageMode = "sqlite"
	// ModeEsOnly uses Elasticsearch for both roles.
	ModeEsOnly StorageMode = "es_only"
)

// Pair bundles the two stores a StorageMode resolves to.
type Pair struct {
	Metadata MetadataStore
	Log      LogStore
}

// Close closes both stores in the pair, returning the first error
// encountered while still attempting to close the second.
func (p *Pair) Close() error {
	logErr := p.Log.Close()
	metaErr := p.Metadata.Close()
	if logErr != nil {
		return logErr
	}
	return metaErr
}
