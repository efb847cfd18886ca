// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

package auditpipe

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditmodel"
	"github.com/wmenjoy/sql-tools-sub019/internal/logging"
)

// subjectForEvent derives the JetStream subject an event publishes to.
// The stream's subject filter is "sqlaudit.>"; partitioning by datasource
// keeps a single noisy datasource from starving a durable consumer's
// ordering guarantees for the others.
func subjectForEvent(event *auditmodel.AuditEvent) string {
	ds := event.Datasource
	if ds == "" {
		ds = "unknown"
	}
	return "sqlaudit." + ds
}

// Publisher is the watermill/NATS JetStream implementation of
// auditmodel.Sink: the interceptor adapter's writer publishes here first,
// falling back to the local spool only when this returns an error.
type Publisher struct {
	publisher message.Publisher
	logger    watermill.LoggerAdapter
}

// NewPublisher opens a resilient JetStream publisher for BrokerConfig.URL.
// TrackMsgId is enabled so a redelivered event (same SqlID, same content)
// is deduplicated by the broker's message-ID window rather than the
// consumer's own logic.
func NewPublisher(cfg BrokerConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("audit broker publisher disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("audit broker publisher reconnected")
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // the stream is provisioned by EnsureStream
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create audit broker publisher: %w", err)
	}
	return &Publisher{publisher: pub, logger: logger}, nil
}

// Publish implements auditmodel.Sink.
func (p *Publisher) Publish(ctx context.Context, event *auditmodel.AuditEvent) error {
	payload, err := event.MarshalCanonicalJSON()
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := message.NewMessage(event.SqlID, payload)
	msg.Metadata.Set("Nats-Msg-Id", event.SqlID)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(subjectForEvent(event), msg); err != nil {
		return fmt.Errorf("publish audit event %s: %w", event.SqlID, err)
	}
	return nil
}

// Close releases the underlying NATS connection.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}

// Raw exposes the underlying Watermill publisher, e.g. to wire as the
// router's poison-queue publisher without opening a second connection.
func (p *Publisher) Raw() message.Publisher {
	return p.publisher
}
