// Command filterstream runs the dynamic, multi-tenant streaming ingest
// service: a Reconciler that converges Stream Workers onto a config table,
// and a Batcher that persists received events into Postgres.
//
// Purpose:
//
//	This binary is the sole entrypoint. It loads configuration, initializes
//	observability and the database pool, then starts the Reconciler,
//	Batcher, and Counter loops alongside an ambient health/metrics server,
//	shutting all of it down gracefully on SIGINT/SIGTERM.
//
// Key Responsibilities:
//   - Load and validate configuration (a configuration error aborts the
//     process before the core loops start; so does a failed initial
//     database connection, since there is no startup retry)
//   - Initialize observability (tracing + metrics) and structured logging
//   - Initialize the Postgres connection pool
//   - Start the Reconciler, Batcher, and Counter loops, each supervised
//   - Serve /healthz, /readyz, /metrics
//   - Handle graceful shutdown
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/relaystream/filterstream/internal/batcher"
	"github.com/relaystream/filterstream/internal/config"
	"github.com/relaystream/filterstream/internal/counter"
	"github.com/relaystream/filterstream/internal/httpapi"
	"github.com/relaystream/filterstream/internal/logging"
	"github.com/relaystream/filterstream/internal/observability"
	"github.com/relaystream/filterstream/internal/queue"
	"github.com/relaystream/filterstream/internal/reconciler"
	"github.com/relaystream/filterstream/internal/store/postgres"
	"github.com/relaystream/filterstream/internal/supervise"
	"github.com/relaystream/filterstream/internal/worker"
)

func main() {
	ctx := context.Background()

	// Load configuration. A configuration error aborts the process before
	// anything else starts (spec.md §7).
	cfg := config.MustLoad()

	logger := logging.MustNew(logging.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		LogFile:     cfg.LogFile,
	})
	defer logger.Sync()

	worker.MaxBackoff = cfg.BackoffCap

	obs := observability.MustInit(ctx, observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.TelemetryEndpoint,
		Protocol:    cfg.TelemetryProtocol,
		Headers:     map[string]string{},
		Insecure:    cfg.TelemetryInsecure,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown observability", zap.Error(err))
		}
	}()
	if obs.Fallback() {
		logger.Warn("telemetry running in degraded (no-op) mode")
	}

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	q := queue.New()

	httpServer := httpapi.NewServer(httpapi.Config{
		Logger: logger.Logger,
		Pool:   store.Pool(),
	})
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting ambient http surface", zap.String("addr", cfg.HTTPAddr))
		serverErrors <- srv.ListenAndServe()
	}()

	runCtx, cancelRun := context.WithCancel(ctx)

	rec := reconciler.New(store, q, logger.Logger, cfg.ReloadEvery, cfg.UpstreamURL)
	supervise.Go(logger.Logger, "reconciler", func() { rec.Start(runCtx) })

	cnt := counter.New(logger.WithComponent("counter"), cfg.CountEvery)
	supervise.Go(logger.Logger, "counter", func() { cnt.Start(runCtx) })

	bat := batcher.New(store, q, cnt, logger.WithComponent("batcher"), cfg.SaveEvery)
	supervise.Go(logger.Logger, "batcher", func() { bat.Start(runCtx) })

	logger.Info("filterstream started",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
		zap.Duration("reload_every", cfg.ReloadEvery),
		zap.Duration("save_every", cfg.SaveEvery),
		zap.Duration("count_every", cfg.CountEvery),
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("ambient http surface failed", zap.Error(err))
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful http shutdown failed", zap.Error(err))
		srv.Close()
	}

	logger.Info("shutdown complete")
}
