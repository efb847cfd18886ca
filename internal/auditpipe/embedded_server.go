// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package auditpipe

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedBroker runs a single-process NATS JetStream server for
// deployments that don't want to operate a separate broker
// (BrokerConfig.EmbeddedServer, SPEC_FULL.md §6 audit.broker.*). It is not
// started at all when EmbeddedServer is false, in which case BrokerConfig.URL
// must point at an externally managed NATS cluster.
type EmbeddedBroker struct {
	server    *server.Server
	clientURL string
}

// NewEmbeddedBroker starts an embedded JetStream server bound to cfg's
// store directory and resource limits. Returns an error if the server
// doesn't report ready within 30 seconds.
func NewEmbeddedBroker(cfg BrokerConfig) (*EmbeddedBroker, error) {
	opts := &server.Options{
		ServerName:         "sql-audit-broker",
		Host:               "127.0.0.1",
		Port:               4222,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.MaxMemory,
		JetStreamMaxStore:  cfg.MaxStore,
		DontListen:         false,
		MaxPayload:         8 * 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}

	ns.ConfigureLogger()
	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats server not ready within timeout")
	}

	return &EmbeddedBroker{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the URL clients (the audit publisher and subscriber)
// should connect to, overriding BrokerConfig.URL when the embedded server
// is in use.
func (b *EmbeddedBroker) ClientURL() string {
	return b.clientURL
}

// Shutdown stops the embedded server, waiting for ctx or full drain.
func (b *EmbeddedBroker) Shutdown(ctx context.Context) error {
	b.server.Shutdown()
	done := make(chan struct{})
	go func() {
		b.server.WaitForShutdown()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
