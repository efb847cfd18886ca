// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/logging"
)

// MySQLStore backs ModeMysqlOnly (both roles) and the metadata half of
// ModeMysqlEs. Schema and query shape mirror DuckDBLogStore; MySQL's
// InnoDB engine and JSON column type are the only real divergence.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens dsn (a go-sql-driver/mysql DSN, e.g.
// "user:pass@tcp(host:3306)/dbname?parseTime=true") and ensures the schema
// exists. parseTime=true is required so TIMESTAMP columns scan into
// time.Time directly.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTable(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS audit_reports (
			report_id VARCHAR(128) PRIMARY KEY,
			sql_id VARCHAR(64) NOT NULL,
			statement_id VARCHAR(256) NOT NULL,
			datasource VARCHAR(128) NOT NULL,
			command VARCHAR(16) NOT NULL,
			sql_text MEDIUMTEXT NOT NULL,
			execution_time_ms BIGINT NOT NULL,
			rows_affected BIGINT NOT NULL,
			error_message TEXT,
			severity VARCHAR(16) NOT NULL,
			confidence INT NOT NULL,
			justification TEXT NOT NULL,
			checker_results JSON NOT NULL,
			event_timestamp TIMESTAMP(6) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_audit_reports_statement_id (statement_id),
			INDEX idx_audit_reports_event_timestamp (event_timestamp)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit_reports table: %w", err)
	}
	logging.Info().Msg("mysql audit_reports table created/verified")
	return nil
}

const mysqlInsertQuery = `
	INSERT IGNORE INTO audit_reports (
		report_id, sql_id, statement_id, datasource, command, sql_text,
		execution_time_ms, rows_affected, error_message,
		severity, confidence, justification, checker_results, event_timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Log persists a single report, deduplicated on reportID.
func (s *MySQLStore) Log(ctx context.Context, report *auditmodel.AuditReport) error {
	params, err := reportParams(report)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, mysqlInsertQuery, params...); err != nil {
		return fmt.Errorf("failed to save audit report: %w", err)
	}
	return nil
}

// LogBatch persists reports within a single transaction.
func (s *MySQLStore) LogBatch(ctx context.Context, reports []*auditmodel.AuditReport) error {
	if len(reports) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, mysqlInsertQuery)
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
func (s *MySQLStore) FindByTimeRange(ctx context.Context, start, end time.Time) ([]*auditmodel.AuditReport, error) {
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
func (s *MySQLStore) CountByTimeRange(ctx context.Context, start, end time.Time) (int64, error) {
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
func (s *MySQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
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

// FindReport looks up a single report by its primary key.
func (s *MySQLStore) FindReport(ctx context.Context, reportID string) (*auditmodel.AuditReport, error) {
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
func (s *MySQLStore) FindByStatementID(ctx context.Context, statementID string) ([]*auditmodel.AuditReport, error) {
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

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// AsPair exposes one MySQLStore as both halves of a Pair for ModeMysqlOnly.
func (s *MySQLStore) AsPair() *Pair {
	return &Pair{Metadata: &mysqlMetadataAdapter{s}, Log: s}
}

type mysqlMetadataAdapter struct {
	*MySQLStore
}

func (a *mysqlMetadataAdapter) Close() error { return nil }

// Save persists an AuditReport's metadata. In ModeMysqlOnly the metadata
// and log roles share one table, so Save is just Log under the
// MetadataStore name the pipeline writes through.
func (a *mysqlMetadataAdapter) Save(ctx context.Context, report *auditmodel.AuditReport) error {
	return a.MySQLStore.Log(ctx, report)
}
