// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"
)

// NewPair connects whichever metadata-store/log-store pair cfg.Mode names
// and returns it ready for the audit pipeline to write through. Callers own
// the returned Pair's lifetime and should Close it on shutdown.
func NewPair(ctx context.Context, cfg Config) (*Pair, error) {
	switch cfg.Mode {
	case ModeMysqlOnly:
		store, err := NewMySQLStore(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("connect mysql store: %w", err)
		}
		return store.AsPair(), nil

	case ModeMysqlEs:
		meta, err := NewMySQLStore(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("connect mysql metadata store: %w", err)
		}
		logStore, err := NewESLogStore(ctx, cfg.ElasticsearchAddrs)
		if err != nil {
			return nil, fmt.Errorf("connect elasticsearch log store: %w", err)
		}
		return &Pair{Metadata: &mysqlMetadataAdapter{meta}, Log: logStore}, nil

	case ModePgOnly:
		meta, err := NewPostgresMetadataStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres metadata store: %w", err)
		}
		db, err := sql.Open("duckdb", cfg.DuckDBPath)
		if err != nil {
			_ = meta.Close()
			return nil, fmt.Errorf("open duckdb log store for pg-only mode: %w", err)
		}
		logStore, err := NewDuckDBLogStore(ctx, db)
		if err != nil {
			_ = meta.Close()
			return nil, fmt.Errorf("init duckdb log store for pg-only mode: %w", err)
		}
		return &Pair{Metadata: meta, Log: logStore}, nil

	case ModeFullPgClickhouse:
		meta, err := NewPostgresMetadataStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres metadata store: %w", err)
		}
		db, err := sql.Open("duckdb", cfg.DuckDBPath)
		if err != nil {
			_ = meta.Close()
			return nil, fmt.Errorf("open duckdb log store: %w", err)
		}
		logStore, err := NewDuckDBLogStore(ctx, db)
		if err != nil {
			_ = meta.Close()
			return nil, fmt.Errorf("init duckdb log store: %w", err)
		}
		return &Pair{Metadata: meta, Log: logStore}, nil

	case ModeSqlite:
		store, err := NewSqliteStore(ctx, cfg.SqlitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store.AsPair(), nil

	case ModeEsOnly:
		store, err := NewESLogStore(ctx, cfg.ElasticsearchAddrs)
		if err != nil {
			return nil, fmt.Errorf("connect elasticsearch store: %w", err)
		}
		return store.AsPair(), nil

	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Mode)
	}
}
