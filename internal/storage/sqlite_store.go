// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/logging"
)

// SqliteStore is the single-node ModeSqlite backend: one file serves both
// the MetadataStore and LogStore roles, since a single-node deployment has
// no reason to split them across two engines.
type SqliteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSqliteStore opens path (or ":memory:" for tests) and ensures the
// schema exists.
func NewSqliteStore(ctx context.Context, path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// go-sqlite3 does not support concurrent writers across connections;
	// a single connection avoids SQLITE_BUSY under the worker pool's
	// concurrent Log calls.
	db.SetMaxOpenConns(1)

	s := &SqliteStore{db: db}
	if err := s.createTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteStore) createTable(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS audit_reports (
			report_id TEXT PRIMARY KEY,
			sql_id TEXT NOT NULL,
			statement_id TEXT NOT NULL,
			datasource TEXT NOT NULL,
			command TEXT NOT NULL,
			sql_text TEXT NOT NULL,
			execution_time_ms INTEGER NOT NULL,
			rows_affected INTEGER NOT NULL,
			error_message TEXT,
			severity TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			justification TEXT NOT NULL,
			checker_results TEXT NOT NULL,
			event_timestamp DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_sqlite_audit_reports_statement_id ON audit_reports(statement_id);
		CREATE INDEX IF NOT EXISTS idx_sqlite_audit_reports_timestamp ON audit_reports(event_timestamp);
	`
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	logging.Info().Msg("sqlite audit_reports table created/verified")
	return nil
}

const sqliteInsertQuery = `
	INSERT OR IGNORE INTO audit_reports (
		report_id, sql_id, statement_id, datasource, command, sql_text,
		execution_time_ms, rows_affected, error_message,
		severity, confidence, justification, checker_results, event_timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Log persists a single report, deduplicated on reportID.
func (s *SqliteStore) Log(ctx context.Context, report *auditmodel.AuditReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := reportParams(report)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteInsertQuery, params...); err != nil {
		return fmt.Errorf("failed to save audit report: %w", err)
	}
	return nil
}

// LogBatch persists reports within a single transaction.
func (s *SqliteStore) LogBatch(ctx context.Context, reports []*auditmodel.AuditReport) error {
	if len(reports) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, report := range reports {
		params, err := reportParams(report)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, params...); err != nil {
			return fmt.Errorf("failed to save audit report %s: %w", report.ReportID, err)
		}
	}
	return tx.Commit()
}

// FindByTimeRange returns reports with event_timestamp in [start, end),
// ordered oldest-first.
func (s *SqliteStore) FindByTimeRange(ctx context.Context, start, end time.Time) ([]*auditmodel.AuditReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM audit_reports
		WHERE event_timestamp >= ? AND event_timestamp < ?
		ORDER BY event_timestamp ASC
	`, selectReportColumnsNoCast), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit reports: %w", err)
	}
	defer rows.Close()

	var reports []*auditmodel.AuditReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			logging.Warn().Err(err).Msg("failed to scan audit report row")
			continue
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// CountByTimeRange returns the number of reports with event_timestamp in
// [start, end).
func (s *SqliteStore) CountByTimeRange(ctx context.Context, start, end time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_reports WHERE event_timestamp >= ? AND event_timestamp < ?`,
		start, end,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit reports: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes reports whose event_timestamp predates cutoff.
func (s *SqliteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_reports WHERE event_timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit reports: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	if count > 0 {
		logging.Info().Int64("deleted", count).Time("cutoff", cutoff).Msg("deleted expired audit reports")
	}
	return count, nil
}

// FindReport looks up a single report by its primary key, implementing
// MetadataStore for ModeSqlite's combined role.
func (s *SqliteStore) FindReport(ctx context.Context, reportID string) (*auditmodel.AuditReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM audit_reports WHERE report_id = ?`, selectReportColumnsNoCast), reportID)
	report, err := scanReport(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find report: %w", err)
	}
	return report, nil
}

// FindByStatementID returns every report recorded for a logical statement.
func (s *SqliteStore) FindByStatementID(ctx context.Context, statementID string) ([]*auditmodel.AuditReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM audit_reports WHERE statement_id = ? ORDER BY event_timestamp DESC
	`, selectReportColumnsNoCast), statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports by statement id: %w", err)
	}
	defer rows.Close()

	var reports []*auditmodel.AuditReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// Close closes the underlying database handle.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

const selectReportColumnsNoCast = `
	report_id, sql_id, statement_id, datasource, command, sql_text,
	execution_time_ms, rows_affected, error_message,
	severity, confidence, justification,
	checker_results, event_timestamp
`

// AsPair exposes one SqliteStore as both halves of a Pair, since ModeSqlite
// uses a single engine for both roles.
func (s *SqliteStore) AsPair() *Pair {
	return &Pair{Metadata: &sqliteMetadataAdapter{s}, Log: s}
}

// sqliteMetadataAdapter gives SqliteStore its own Close semantics when used
// as the Metadata half of a Pair: Pair.Close would otherwise close the one
// shared *sql.DB twice.
type sqliteMetadataAdapter struct {
	*SqliteStore
}

func (a *sqliteMetadataAdapter) Close() error { return nil }

// Save persists an AuditReport's metadata. ModeSqlite uses one table for
// both roles, so Save is just Log under the MetadataStore name the
// pipeline writes through.
func (a *sqliteMetadataAdapter) Save(ctx context.Context, report *auditmodel.AuditReport) error {
	return a.SqliteStore.Log(ctx, report)
}
