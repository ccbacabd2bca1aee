// Package main is the entry point for the billing sync API server.
//
// It loads configuration, opens the database pool, loads the plan catalog,
// starts the notification dispatcher and the metrics flusher, mounts the
// webhook and admin routes, and serves HTTP until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"billingsync/internal/api/handlers"
	"billingsync/internal/billing"
	"billingsync/internal/config"
	"billingsync/internal/core"
	"billingsync/internal/db"
	"billingsync/internal/external"
	"billingsync/internal/notifications"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// metricsSink is what both the HTTP chassis and the webhook handler record to.
type metricsSink interface {
	core.MetricsCollector
	handlers.WebhookMetrics
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("billingsync API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:               cfg.Database.URL.Unmask(),
		MaxConns:          int32(cfg.Database.MaxConns),
		MinConns:          int32(cfg.Database.MinConns),
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		ConnectTimeout:    cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	initial, err := billing.LoadCatalog(cfg.Billing.PlanCatalogPath)
	if err != nil {
		return fmt.Errorf("loading plan catalog: %w", err)
	}
	catalog := billing.NewCatalogHolder(initial, cfg.Billing.PlanCatalogPath, logger)
	logger.Info("plan catalog loaded",
		"path", cfg.Billing.PlanCatalogPath,
		"plans", len(initial.Entries()),
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	publisher := newPublisher(cfg, awsCfg, logger)
	dispatcher := notifications.NewDispatcher(publisher, notifications.DispatcherConfig{
		QueueSize:   cfg.Notify.QueueSize,
		Workers:     cfg.Notify.Workers,
		SendTimeout: cfg.Notify.SendTimeout,
	}, logger)

	metrics, flushMetrics := newMetrics(cfg, awsCfg, logger)

	reconciler := billing.NewReconciler(db.NewTxManager(pool, logger), catalog, dispatcher, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = metrics
	srv.HealthProbes = []core.HealthProbe{core.NewDatabaseProbe(pool)}

	webhookHandler := handlers.NewBillingWebhookHandler(
		&external.StripeVerifier{},
		reconciler,
		cfg.Billing.WebhookSecret,
		metrics,
		logger,
	)
	adminHandler := handlers.NewAdminPlansHandler(catalog, cfg.Security.AdminAPIKeyHash, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars,
		webhookHandler.RegisterRoutes,
		adminHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	// Background workers outlive the HTTP server so queued notifications and
	// buffered metrics are flushed after the last request.
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	dispatchDone := make(chan error, 1)
	go func() { dispatchDone <- dispatcher.Run(dispatchCtx) }()

	metricsCtx, cancelMetrics := context.WithCancel(context.Background())
	defer cancelMetrics()
	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		if flushMetrics != nil {
			flushMetrics(metricsCtx)
		}
	}()

	serveErr := runHTTPServer(ctx, srv, cfg, logger)

	dispatcher.Close()
	select {
	case <-dispatchDone:
	case <-time.After(shutdownTimeout):
		logger.Warn("notification dispatcher did not drain in time")
		cancelDispatch()
	}
	cancelMetrics()
	<-metricsDone

	if serveErr != nil {
		return serveErr
	}
	logger.Info("server stopped cleanly")
	return nil
}

func newPublisher(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) notifications.Publisher {
	if cfg.AWS.BillingNotificationQueue == "" {
		logger.Warn("SQS_BILLING_NOTIFICATIONS not set, notifications are only logged")
		return notifications.LogPublisher{Logger: logger}
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	return notifications.NewSQSPublisher(client, cfg.AWS.BillingNotificationQueue, logger)
}

// newMetrics returns the sink and, when it buffers, its flush loop.
func newMetrics(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (metricsSink, func(context.Context)) {
	if !cfg.Observability.EnableMetrics || cfg.Environment == "local" {
		return core.NoopMetrics{}, nil
	}
	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	m := core.NewCloudWatchMetrics(client, cfg.Observability.MetricNamespace, logger)
	return m, m.Run
}

// runHTTPServer serves until ctx is canceled, then shuts down gracefully.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
