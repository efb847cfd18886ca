// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package testinfra provides test infrastructure for integration testing with containers.
//
// This package uses testcontainers-go to manage Docker containers for integration tests,
// providing realistic testing environments that closely match production.
//
// # Storage Adapter Containers
//
// The helpers here serve integration tests (build tag: integration) that run
// a store against a real MySQL or PostgreSQL container rather than mocking
// database/sql. The module contains no such test at present; one would
// look like this:
//
//	func TestMySQLStore_LogBatch(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    container, err := mysql.Run(ctx, "mysql:8.0")
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, container)
//
//	    store, err := storage.NewMySQLStore(ctx, connStringFrom(container))
//	    // ... exercise LogBatch/FindByTimeRange/DeleteOlderThan against it
//	}
//
// # Benefits Over Mocks
//
// Using real containers provides several advantages:
//   - Tests validate actual SQL dialect behavior (LIMIT/TOP/ROWNUM, index DDL)
//   - No mock drift (mocks getting out of sync with the real driver)
//   - Tests run against production-equivalent services
//   - Exercises the same connection pool code path production uses
//
// # CI Considerations
//
// These tests require Docker and network access. In CI:
//   - Self-hosted runners have Docker pre-installed
//   - Container images are cached between runs
//   - Tests are skipped gracefully if Docker is unavailable
//
// # Network Requirements
//
// First run may need to download container images. Subsequent runs use cached images.
package testinfra
