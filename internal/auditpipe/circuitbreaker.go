// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package auditpipe

import (
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/wmenjoy/sql-tools-sub019/internal/logging"
)

// NewStorageBreaker builds a circuit breaker guarding one storage writer
// (metadata store or log store). Tripping it stops hammering a failing
// backend with batch writes the worker pool would otherwise keep retrying.
func NewStorageBreaker(cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("storage circuit breaker state change")
		},
	}
	return gobreaker.NewCircuitBreaker[any](settings)
}

// ExecuteWithBreaker runs fn through cb, returning the function's error or
// the breaker's own rejection error when open.
func ExecuteWithBreaker[T any](cb *gobreaker.CircuitBreaker[T], fn func() (T, error)) (T, error) {
	return cb.Execute(fn)
}

// BreakerState reports the current state name for metrics/health checks.
func BreakerState[T any](cb *gobreaker.CircuitBreaker[T]) string {
	return cb.State().String()
}
