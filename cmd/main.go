package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/global-credit/credit_core/internal/api/routes"
	"github.com/global-credit/credit_core/internal/infrastructure/config"
	"github.com/global-credit/credit_core/internal/infrastructure/database"
	"github.com/global-credit/credit_core/internal/infrastructure/di"
	"github.com/global-credit/credit_core/pkg/graceful"
	"github.com/global-credit/credit_core/pkg/logger"
	"github.com/global-credit/credit_core/pkg/metrics"
	"github.com/global-credit/credit_core/pkg/tracing"
)

func main() {
	// Load configuration; missing or short secrets fail closed here
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	// Initialize OpenTelemetry tracing
	tracingShutdown, err := tracing.Init(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Environment == "development",
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}
	defer tracingShutdown(context.Background())

	// Initialize database
	db, err := database.Connect(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	// Run migrations (schema, triggers, constraints)
	if err := database.RunMigrations(cfg.Database, log); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Build dependency injection container
	container, err := di.NewContainer(cfg, db, log)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}

	router := routes.SetupRoutes(container)

	// Realtime fan-out: hub loop plus pub/sub subscriber feeding it
	go container.Hub.Run()

	subscriberCtx, stopSubscriber := context.WithCancel(context.Background())
	go func() {
		for {
			err := container.Subscriber.Run(subscriberCtx, container.Hub.Broadcast)
			if subscriberCtx.Err() != nil {
				return
			}
			log.Warn("Pub/sub subscriber stopped, reconnecting", "error", err)
			time.Sleep(5 * time.Second)
		}
	}()

	// Queue bridge: pending_jobs -> work queue
	if err := container.Bridge.Start(context.Background()); err != nil {
		log.Fatal("Failed to start queue bridge", "error", err)
	}
	log.Info("Queue bridge started")

	// Worker pool
	if err := container.Processor.Start(context.Background()); err != nil {
		log.Fatal("Failed to start application processor", "error", err)
	}
	log.Info("Application processor started", "concurrency", cfg.Workers.Concurrency)

	// Scheduled maintenance
	if cfg.Maintenance.Enabled {
		if err := container.MaintenanceWorker.Start(); err != nil {
			log.Fatal("Failed to start maintenance worker", "error", err)
		}
	} else {
		log.Info("Maintenance worker disabled in configuration")
	}

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.Info("Starting server",
			"port", cfg.Server.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Export database pool metrics
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			stats := db.Stats()
			metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
			metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
			metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
		}
	}()

	// Drain in dependency order: intake stops first so no new work
	// arrives, the bridge stops feeding the queue, the worker pool
	// finishes or requeues in-flight tasks, then the schedulers,
	// fan-out and storage handles close.
	drainer := graceful.NewDrainer(cfg.Workers.ShutdownGrace, log)
	drainer.Add("http intake", func(timeout time.Duration) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return server.Shutdown(ctx)
	})
	drainer.Add("queue bridge", container.Bridge.Shutdown)
	drainer.Add("worker pool", container.Processor.Shutdown)
	if cfg.Maintenance.Enabled {
		drainer.AddCloser("maintenance scheduler", func() error {
			container.MaintenanceWorker.Stop()
			return nil
		})
	}
	drainer.AddCloser("realtime fan-out", func() error {
		stopSubscriber()
		container.Hub.Stop()
		return nil
	})
	drainer.AddCloser("redis", container.Redis.Close)
	drainer.AddCloser("database", db.Close)

	drainer.WaitForSignal()
	log.Info("Server exited gracefully")
}
