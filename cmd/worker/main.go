// Package main provides the entry point for the background jobs worker.
// It runs the alert evaluator, the retention sweeper and the metrics
// aggregator on their configured intervals.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/logpeak/logpeak/internal/aggregate"
	"github.com/logpeak/logpeak/internal/alerting"
	"github.com/logpeak/logpeak/internal/jobs"
	"github.com/logpeak/logpeak/internal/retention"
	"github.com/logpeak/logpeak/internal/shutdown"
	"github.com/logpeak/logpeak/internal/store/factory"
	"github.com/logpeak/logpeak/pkg/config"
	"github.com/logpeak/logpeak/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsServer exposes /metrics and a liveness endpoint so the worker
// can be scraped and probed like the API server.
func metricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func main() {
	log := logger.New(slog.LevelInfo, true)

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	st, err := factory.Open(cfg.StoreDriver, cfg.DatabaseDSN, log.Logger)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	sweeper := retention.NewSweeper(st, log.Logger, retention.Policy{
		NormalWindow:  cfg.Retention.NormalWindow,
		ErrorWindow:   cfg.Retention.ErrorWindow,
		BatchSize:     cfg.Retention.SweepBatchSize,
		MetricsWindow: cfg.Retention.MetricsWindow,
	})
	aggregator := aggregate.New(st, log.Logger)
	evaluator := alerting.New(st, log.Logger)
	runner := jobs.NewRunner(evaluator, sweeper, aggregator, cfg.Jobs, log.Logger)

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	metrics := metricsServer(cfg.MetricsPort)

	coordinator.Register(shutdown.NewCloserComponent("store", st))
	coordinator.Register(shutdown.NewWorkerComponent("jobs", runner))
	coordinator.Register(shutdown.NewFuncComponent("metrics-server", metrics.Shutdown))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		coordinator.WaitForSignal()
		cancel()
	}()

	log.Info("starting jobs worker", "store_driver", cfg.StoreDriver, "metrics_port", cfg.MetricsPort)

	go func() {
		if err := metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	if err := runner.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker error", "error", err)
		coordinator.Shutdown()
		os.Exit(1)
	}

	coordinator.Wait()
	log.Info("worker stopped")
	os.Exit(coordinator.ExitCode())
}
