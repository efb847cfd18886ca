// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auditpipe is the asynchronous audit pipeline (SPEC_FULL.md
// §4.10): a broker consumer feeding a bounded worker pool that runs the
// audit checker bank and assembles AuditReports for storage.
package auditpipe

import (
	"os"
	"strconv"
	"time"
)

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return defaultVal
}

func getEnvString(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// BrokerConfig holds the message-broker connection settings the audit
// pipeline's consumer and producer both use.
type BrokerConfig struct {
	// Env: AUDIT_BROKER_URL (default: nats://127.0.0.1:4222)
	URL string
	// Env: AUDIT_BROKER_EMBEDDED (default: true)
	EmbeddedServer bool
	// Env: AUDIT_BROKER_STORE_DIR (default: /data/nats/jetstream-audit)
	StoreDir  string
	MaxMemory int64
	MaxStore  int64
}

// DefaultBrokerConfig returns production defaults for the broker connection.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		URL:            "nats://127.0.0.1:4222",
		EmbeddedServer: true,
		StoreDir:       "/data/nats/jetstream-audit",
		MaxMemory:      1 << 30,
		MaxStore:       10 << 30,
	}
}

// LoadBrokerConfig loads BrokerConfig, applying env overrides.
func LoadBrokerConfig() BrokerConfig {
	cfg := DefaultBrokerConfig()
	cfg.URL = getEnvString("AUDIT_BROKER_URL", cfg.URL)
	cfg.EmbeddedServer = getEnvBool("AUDIT_BROKER_EMBEDDED", cfg.EmbeddedServer)
	cfg.StoreDir = getEnvString("AUDIT_BROKER_STORE_DIR", cfg.StoreDir)
	return cfg
}

// StreamConfig defines the audit-event JetStream stream.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns the audit-event stream defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            "SQL_AUDIT_EVENTS",
		Subjects:        []string{"sqlaudit.>"},
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// SubscriberConfig controls the consumer group reading the audit stream.
// SubscribersCount is the consumer-pool size (§5: "consumer pool of fixed
// size").
type SubscriberConfig struct {
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
}

// DefaultSubscriberConfig returns the audit consumer defaults.
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		DurableName:      "sql-audit-processor",
		QueueGroup:       "sql-audit-processors",
		SubscribersCount: 4,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       5,
		MaxAckPending:    1000,
	}
}

// LoadSubscriberConfig loads SubscriberConfig, applying env overrides.
func LoadSubscriberConfig() SubscriberConfig {
	cfg := DefaultSubscriberConfig()
	cfg.DurableName = getEnvString("AUDIT_DURABLE_NAME", cfg.DurableName)
	cfg.QueueGroup = getEnvString("AUDIT_QUEUE_GROUP", cfg.QueueGroup)
	cfg.SubscribersCount = getEnvInt("AUDIT_SUBSCRIBERS", cfg.SubscribersCount)
	cfg.AckWaitTimeout = getEnvDuration("AUDIT_ACK_WAIT", cfg.AckWaitTimeout)
	return cfg
}

// WorkerPoolConfig controls the bounded worker pool that runs the audit
// checker bank and assembles reports (§5: "worker pool of configurable
// size").
type WorkerPoolConfig struct {
	WorkerCount  int
	QueueDepth   int
	DrainTimeout time.Duration
}

// DefaultWorkerPoolConfig returns the worker pool defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:  8,
		QueueDepth:   2000,
		DrainTimeout: 30 * time.Second,
	}
}

// LoadWorkerPoolConfig loads WorkerPoolConfig, applying env overrides.
func LoadWorkerPoolConfig() WorkerPoolConfig {
	cfg := DefaultWorkerPoolConfig()
	cfg.WorkerCount = getEnvInt("AUDIT_WORKER_COUNT", cfg.WorkerCount)
	cfg.QueueDepth = getEnvInt("AUDIT_QUEUE_DEPTH", cfg.QueueDepth)
	cfg.DrainTimeout = getEnvDuration("AUDIT_DRAIN_TIMEOUT", cfg.DrainTimeout)
	return cfg
}

// CircuitBreakerConfig guards storage writes from a failing backend.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultCircuitBreakerConfig returns production defaults, named for the
// protected resource (e.g. "storage-writer").
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}
