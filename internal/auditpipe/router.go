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
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	natsgo "github.com/nats-io/nats.go"

	"github.com/wmenjoy/sql-tools-sub019/internal/cache"
)

// RouterConfig controls the Watermill middleware chain wrapping the audit
// event consumer.
type RouterConfig struct {
	CloseTimeout time.Duration

	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	ThrottlePerSecond int64

	PoisonQueueTopic string

	DeduplicationEnabled bool
	DeduplicationTTL     time.Duration
}

// DefaultRouterConfig returns production defaults for the audit router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      5,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
		ThrottlePerSecond:    0,
		PoisonQueueTopic:     "sqlaudit.dlq",
		DeduplicationEnabled: true,
		DeduplicationTTL:     5 * time.Minute,
	}
}

// Router wraps a Watermill Router pre-configured with the resilience
// middleware SPEC_FULL.md §7 requires between the broker and the worker
// pool: panic recovery, retry with backoff, optional throttling, optional
// near-term dedup, and poison-queue routing for messages that exhaust
// retries.
type Router struct {
	router    *message.Router
	config    RouterConfig
	logger    watermill.LoggerAdapter
	poisonPub message.Publisher
	running   bool
	handlers  map[string]*message.Handler
	dedupRepo *inMemoryDeduplicator
}

// inMemoryDeduplicator implements middleware.ExpiringKeyRepository backed
// by the shared LRU cache, so repeated deliveries of the same message UUID
// within a short window are dropped before reaching the worker pool.
type inMemoryDeduplicator struct {
	cache *cache.LRUCache
}

func newInMemoryDeduplicator(ttl time.Duration) *inMemoryDeduplicator {
	return &inMemoryDeduplicator{cache: cache.NewLRUCache(10000, ttl)}
}

func (d *inMemoryDeduplicator) IsDuplicate(_ context.Context, key string) (bool, error) {
	return d.cache.IsDuplicate(key), nil
}

// NewRouter builds the audit router. poisonPublisher receives messages that
// fail after RetryMaxRetries attempts; it is typically the same Publisher
// used for the main stream, targeting PoisonQueueTopic.
func NewRouter(cfg *RouterConfig, poisonPublisher message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	if cfg == nil {
		defaultCfg := DefaultRouterConfig()
		cfg = &defaultCfg
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	r := &Router{
		router:    wmRouter,
		config:    *cfg,
		logger:    logger,
		poisonPub: poisonPublisher,
		handlers:  make(map[string]*message.Handler),
	}

	wmRouter.AddPlugin(plugin.SignalsHandler)

	wmRouter.AddMiddleware(middleware.Recoverer)

	retryMiddleware := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retryMiddleware.Middleware)

	if cfg.ThrottlePerSecond > 0 {
		throttle := middleware.NewThrottle(cfg.ThrottlePerSecond, time.Second)
		wmRouter.AddMiddleware(throttle.Middleware)
	}

	if cfg.DeduplicationEnabled {
		r.dedupRepo = newInMemoryDeduplicator(cfg.DeduplicationTTL)
		dedup := middleware.Deduplicator{
			KeyFactory: func(msg *message.Message) (string, error) {
				return msg.UUID, nil
			},
			Repository: r.dedupRepo,
		}
		wmRouter.AddMiddleware(dedup.Middleware)
	}

	if poisonPublisher != nil && cfg.PoisonQueueTopic != "" {
		poisonQueue, err := middleware.PoisonQueue(poisonPublisher, cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poisonQueue)
	}

	return r, nil
}

// AddConsumerHandler registers a handler with no output messages; the audit
// pipeline's worker pool stage is always terminal (it writes to storage,
// not back onto the broker).
func (r *Router) AddConsumerHandler(
	name string,
	subscribeTopic string,
	subscriber message.Subscriber,
	handler message.NoPublishHandlerFunc,
) *message.Handler {
	h := r.router.AddConsumerHandler(name, subscribeTopic, subscriber, handler)
	r.handlers[name] = h
	return h
}

// Run starts the router and blocks until ctx is canceled or Close is
// called.
func (r *Router) Run(ctx context.Context) error {
	r.running = true
	defer func() { r.running = false }()
	return r.router.Run(ctx)
}

// Running returns a channel that closes once the router has entered its
// run loop.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close stops the router, waiting up to CloseTimeout for in-flight
// messages to finish.
func (r *Router) Close() error {
	return r.router.Close()
}

// IsRunning reports whether the router is currently processing messages.
func (r *Router) IsRunning() bool {
	return r.running
}

// NewSubscriber opens a durable JetStream subscriber bound to
// StreamConfig.Name, load-balanced across SubscribersCount instances via
// QueueGroup.
func NewSubscriber(broker BrokerConfig, stream StreamConfig, sub SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
	}

	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(sub.MaxDeliver),
		natsgo.MaxAckPending(sub.MaxAckPending),
		natsgo.AckWait(sub.AckWaitTimeout),
		natsgo.BindStream(stream.Name),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              broker.URL,
		QueueGroupPrefix: sub.QueueGroup,
		SubscribersCount: sub.SubscribersCount,
		AckWaitTimeout:   sub.AckWaitTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    sub.DurableName,
		},
	}

	subscriber, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create audit subscriber: %w", err)
	}
	return subscriber, nil
}

// EnsureStream provisions the audit-event JetStream stream if it does not
// already exist. Provisioning it explicitly (rather than via
// AutoProvision) lets a wildcard subject like "sqlaudit.>" back a stream
// whose name is unrelated to the subject, which NATS requires.
func EnsureStream(js natsgo.JetStreamContext, cfg StreamConfig) error {
	_, err := js.StreamInfo(cfg.Name)
	if err == nil {
		return nil
	}
	if err != natsgo.ErrStreamNotFound {
		return fmt.Errorf("check audit stream: %w", err)
	}

	_, err = js.AddStream(&natsgo.StreamConfig{
		Name:       cfg.Name,
		Subjects:   cfg.Subjects,
		MaxAge:     cfg.MaxAge,
		Duplicates: cfg.DuplicateWindow,
		Replicas:   cfg.Replicas,
		Storage:    natsgo.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create audit stream %s: %w", cfg.Name, err)
	}
	return nil
}
