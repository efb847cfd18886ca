// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Command server runs the SQL audit platform's consumer side
// (SPEC_FULL.md §4.10-§4.12, §5, §10): a broker ingress router, a bounded
// worker pool running the audit checker bank, a selectable storage pair,
// a scheduled retention job, and a /metrics + /healthz HTTP endpoint, all
// wired under a single suture supervisor tree.
//
// The prevention engine (internal/sqlguard) that blocks or warns on risky
// SQL at the point of execution runs inside the host application via
// internal/interceptor, not in this process; this binary only consumes the
// audit trail that engine emits.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	natsgo "github.com/nats-io/nats.go"

	"github.com/wmenjoy/sql-tools-sub019/internal/auditcheck"
	"github.com/wmenjoy/sql-tools-sub019/internal/auditpipe"
	"github.com/wmenjoy/sql-tools-sub019/internal/httpapi"
	"github.com/wmenjoy/sql-tools-sub019/internal/logging"
	"github.com/wmenjoy/sql-tools-sub019/internal/retention"
	"github.com/wmenjoy/sql-tools-sub019/internal/sqlguard"
	"github.com/wmenjoy/sql-tools-sub019/internal/storage"
	"github.com/wmenjoy/sql-tools-sub019/internal/supervisor"
	"github.com/wmenjoy/sql-tools-sub019/internal/supervisor/services"
)

func main() {
	logCfg := logging.DefaultConfig()
	if v := os.Getenv("AUDIT_LOG_LEVEL"); v != "" {
		logCfg.Level = v
	}
	logging.Init(logCfg)

	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("audit server exited")
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	brokerCfg := auditpipe.LoadBrokerConfig()
	streamCfg := auditpipe.DefaultStreamConfig()
	subCfg := auditpipe.LoadSubscriberConfig()
	workerCfg := auditpipe.LoadWorkerPoolConfig()
	retentionCfg := retention.LoadConfig()
	storageCfg := storage.LoadConfig()
	checkerCfg := auditcheck.LoadConfig()

	var embedded *auditpipe.EmbeddedBroker
	if brokerCfg.EmbeddedServer {
		var err error
		embedded, err = auditpipe.NewEmbeddedBroker(brokerCfg)
		if err != nil {
			return err
		}
		brokerCfg.URL = embedded.ClientURL()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = embedded.Shutdown(shutdownCtx)
		}()
	}

	nc, err := natsgo.Connect(brokerCfg.URL, natsgo.RetryOnFailedConnect(true), natsgo.MaxReconnects(-1))
	if err != nil {
		return err
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		return err
	}
	if err := auditpipe.EnsureStream(js, streamCfg); err != nil {
		return err
	}

	storePair, err := storage.NewPair(ctx, storageCfg)
	if err != nil {
		return err
	}
	defer storePair.Close()

	retentionJob, err := retention.NewJob(retentionCfg, storePair.Log)
	if err != nil {
		return err
	}

	parserCache := sqlguard.NewParserCache(2000, 30*time.Minute)
	bank := auditcheck.DefaultBank(checkerCfg, parserCache)

	dlq, err := auditpipe.NewDLQHandler(auditpipe.DefaultDLQConfig())
	if err != nil {
		return err
	}

	pipeline := auditpipe.NewPipeline(workerCfg, bank, storePair, dlq)

	publisher, err := auditpipe.NewPublisher(brokerCfg, nil)
	if err != nil {
		return err
	}
	defer publisher.Close()

	routerCfg := auditpipe.DefaultRouterConfig()
	router, err := auditpipe.NewRouter(&routerCfg, publisher.Raw(), watermill.NewStdLogger(false, false))
	if err != nil {
		return err
	}

	subscriber, err := auditpipe.NewSubscriber(brokerCfg, streamCfg, subCfg, watermill.NewStdLogger(false, false))
	if err != nil {
		return err
	}
	router.AddConsumerHandler("audit-consumer", streamCfg.Subjects[0], subscriber, pipeline.Handler())

	httpAddr := os.Getenv("AUDIT_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":9090"
	}
	httpServer := &http.Server{Addr: httpAddr, Handler: httpapi.NewRouter(pipeline)}

	tree, err := supervisor.NewSupervisorTree(slog.Default(), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}

	dlqRetryLoop := auditpipe.NewDLQRetryLoop(pipeline, time.Minute)

	tree.AddIngressService(services.NewRunFunc("audit-router", router.Run))
	tree.AddProcessingService(services.NewStartStopService("audit-workers", pipeline))
	tree.AddStorageService(services.NewStartStopService("retention-job", retentionJob))
	tree.AddStorageService(services.NewStartStopService("dlq-retry-loop", dlqRetryLoop))
	tree.AddStorageService(services.NewHTTPServerService(httpServer, 10*time.Second))

	logging.Info().Str("broker_url", brokerCfg.URL).Str("storage_mode", string(storageCfg.Mode)).Str("http_addr", httpAddr).Msg("starting audit server")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
