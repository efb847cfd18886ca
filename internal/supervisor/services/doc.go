// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package services adapts the audit pipeline's components to suture's
// supervised-service shape so they run under internal/supervisor's tree
// (SPEC_FULL.md §5 and §10): the broker router, the worker pool, the
// retention job, and the metrics/health HTTP server.
//
// Two adapters cover the two lifecycle shapes seen across this module's
// long-running components:
//
//   - RunFunc wraps a blocking func(context.Context) error, the shape
//     auditpipe.Router.Run already has.
//   - StartStopService wraps a Start(ctx)/Stop() pair, the shape shared by
//     auditpipe.Pipeline and retention.Job: Start launches background work
//     without blocking, Stop drains it.
//
// Example usage:
//
//	tree.AddIngressService(services.NewRunFunc("audit-router", router.Run))
//	tree.AddProcessingService(services.NewStartStopService("audit-workers", pipeline))
//	tree.AddStorageService(services.NewStartStopService("retention-job", retentionJob))
//	tree.AddStorageService(services.NewHTTPServerService(metricsServer, 10*time.Second))
package services
