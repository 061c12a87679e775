// Package main provides the entry point for the API server.
package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/logpeak/logpeak/internal/aggregate"
	"github.com/logpeak/logpeak/internal/alerting"
	"github.com/logpeak/logpeak/internal/api"
	"github.com/logpeak/logpeak/internal/auth"
	"github.com/logpeak/logpeak/internal/jobs"
	"github.com/logpeak/logpeak/internal/retention"
	"github.com/logpeak/logpeak/internal/shutdown"
	"github.com/logpeak/logpeak/internal/store/factory"
	"github.com/logpeak/logpeak/pkg/config"
	"github.com/logpeak/logpeak/pkg/logger"
)

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

	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}, log.Logger)

	sweeper := retention.NewSweeper(st, log.Logger, retention.Policy{
		NormalWindow:  cfg.Retention.NormalWindow,
		ErrorWindow:   cfg.Retention.ErrorWindow,
		BatchSize:     cfg.Retention.SweepBatchSize,
		MetricsWindow: cfg.Retention.MetricsWindow,
	})
	aggregator := aggregate.New(st, log.Logger)
	evaluator := alerting.New(st, log.Logger)
	runner := jobs.NewRunner(evaluator, sweeper, aggregator, cfg.Jobs, log.Logger)

	server := api.NewServer(cfg, st, authService, runner, aggregator, log.Logger)

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("store", st))
	coordinator.Register(shutdown.NewFuncComponent("api-server", server.Shutdown))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		coordinator.WaitForSignal()
		cancel()
	}()

	log.Info("starting API server",
		"host", cfg.APIHost,
		"port", cfg.APIPort,
		"store_driver", cfg.StoreDriver,
	)

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error("server error", "error", err)
		coordinator.Shutdown()
		os.Exit(1)
	}

	coordinator.Wait()
	log.Info("server stopped")
	os.Exit(coordinator.ExitCode())
}
