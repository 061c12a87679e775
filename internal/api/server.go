// Package api provides the HTTP API server for the log platform.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/logpeak/logpeak/internal/aggregate"
	"github.com/logpeak/logpeak/internal/api/handlers"
	"github.com/logpeak/logpeak/internal/api/health"
	"github.com/logpeak/logpeak/internal/api/middleware"
	"github.com/logpeak/logpeak/internal/auth"
	"github.com/logpeak/logpeak/internal/ingest"
	"github.com/logpeak/logpeak/internal/jobs"
	"github.com/logpeak/logpeak/internal/store"
	"github.com/logpeak/logpeak/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	store         store.Store
	auth          *auth.Service
	rbac          *auth.RBACService
	pipeline      *ingest.Pipeline
	runner        *jobs.Runner
	aggregator    *aggregate.Aggregator
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies. The
// runner handles the periodic jobs and is also exposed through the admin
// trigger endpoints; pass the same instance the worker loop uses.
func NewServer(cfg *config.Config, st store.Store, authSvc *auth.Service, runner *jobs.Runner, aggregator *aggregate.Aggregator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:      st,
		auth:       authSvc,
		rbac:       auth.NewRBACService(st, logger),
		pipeline:   ingest.NewPipeline(st, logger, cfg.Ingest.MaxEventsPerCall),
		runner:     runner,
		aggregator: aggregator,
		config:     cfg,
		logger:     logger,
	}

	s.healthChecker = health.NewChecker(st, Version)

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// Health and metrics endpoints (no auth required)
	r.Get("/health", s.healthChecker.Handler())
	r.Handle("/metrics", promhttp.Handler())

	// Webhook ingestion (authenticated by app API key, not JWT)
	ingestHandler := handlers.NewIngestHandler(s.pipeline, s.config.Ingest.MaxBodyBytes, s.logger)
	r.Post("/ingest", ingestHandler.Ingest)

	// Auth routes (no auth required)
	authHandler := handlers.NewAuthHandler(s.store, s.auth, s.rbac, s.logger)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/can-register", authHandler.CanRegister)
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		authMiddleware := middleware.NewAuthMiddleware(s.auth, s.logger)
		r.Use(authMiddleware.Authenticate)

		logsHandler := handlers.NewLogsHandler(s.store, s.logger)
		streamHandler := handlers.NewStreamHandler(s.store, s.logger)
		r.Route("/logs", func(r chi.Router) {
			r.Use(middleware.RequirePermission(auth.PermissionViewLogs))
			r.Get("/tail", logsHandler.Tail)
			r.Get("/history", logsHandler.History)
			r.Get("/stream", streamHandler.Stream)
			r.Get("/{logID}", logsHandler.Get)
		})

		appHandler := handlers.NewAppHandler(s.store, s.logger)
		alertHandler := handlers.NewAlertHandler(s.store, s.logger)
		r.Route("/apps", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermissionManageApps)).Post("/", appHandler.Create)
			r.With(middleware.RequirePermission(auth.PermissionViewApps)).Get("/", appHandler.List)

			r.Route("/{appID}", func(r chi.Router) {
				r.Use(middleware.RequireAppOwnership(s.store, s.logger))

				r.Get("/", appHandler.Get)
				r.Get("/charts", logsHandler.Charts)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(auth.PermissionManageApps))
					r.Patch("/", appHandler.Update)
					r.Delete("/", appHandler.Delete)
					r.Post("/rotate-key", appHandler.RotateKey)

					r.Route("/flags", func(r chi.Router) {
						r.Get("/", appHandler.ListFlags)
						r.Post("/", appHandler.AddFlag)
						r.Patch("/{flagID}", appHandler.UpdateFlag)
						r.Delete("/{flagID}", appHandler.DeleteFlag)
					})
				})

				r.Route("/alerts", func(r chi.Router) {
					r.Use(middleware.RequirePermission(auth.PermissionManageAlerts))
					r.Post("/", alertHandler.Create)
					r.Get("/", alertHandler.List)
				})
			})
		})

		// Restore targets a soft-deleted app, which the ownership
		// middleware cannot load, so it lives outside the subtree.
		r.With(middleware.RequirePermission(auth.PermissionManageApps)).
			Post("/apps/{appID}/restore", appHandler.Restore)

		r.Route("/alerts/{ruleID}", func(r chi.Router) {
			r.Use(middleware.RequirePermission(auth.PermissionManageAlerts))
			r.Get("/", alertHandler.Get)
			r.Patch("/", alertHandler.Update)
			r.Delete("/", alertHandler.Delete)
		})

		r.With(middleware.RequirePermission(auth.PermissionManageApps)).
			Post("/users", authHandler.CreateMember)

		adminHandler := handlers.NewAdminHandler(s.store, s.runner, s.aggregator, s.logger)
		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(auth.PermissionPurgeLogs))
				r.Post("/purge", adminHandler.PurgeAll)
				r.Post("/purge/{appID}", adminHandler.PurgeApp)
			})
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(auth.PermissionManageRetention))
				r.Post("/sweep", adminHandler.TriggerSweep)
				r.Post("/aggregate", adminHandler.TriggerAggregation)
				r.Post("/metrics-sweep", adminHandler.TriggerMetricsSweep)
			})
			r.With(middleware.RequirePermission(auth.PermissionManageAlerts)).
				Post("/alert-check", adminHandler.TriggerAlertCheck)
		})
	})

	s.router = r
}

// Start starts the HTTP server and blocks until the context is cancelled
// or the server fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
