// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package httpapi builds the admin HTTP surface the storage-layer
// supervisor serves: /metrics (Prometheus) and /healthz (SPEC_FULL.md §7's
// degradation signal). It is deliberately small next to the teacher's full
// API router, but reuses the same Chi middleware stack for the endpoints
// it does expose.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether the audit pipeline is healthy enough to
// serve traffic; a degraded answer flips /healthz to 503 per SPEC_FULL.md
// §7 without crashing the process.
type HealthChecker interface {
	Healthy() (ok bool, reason string)
}

// NewRouter builds the admin HTTP handler. checker may be nil, in which
// case /healthz always reports healthy.
func NewRouter(checker HealthChecker) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Use(httprate.LimitByIP(100, time.Minute))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", healthzHandler(checker))

	return r
}

func healthzHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}

		ok, reason := checker.Healthy()
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(reason))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
