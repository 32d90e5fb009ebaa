// Package di wires the application graph at startup.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/global-credit/credit_core/internal/adapters/bankingprovider"
	"github.com/global-credit/credit_core/internal/domain/services/application"
	"github.com/global-credit/credit_core/internal/domain/services/webhook"
	"github.com/global-credit/credit_core/internal/domain/strategies"
	"github.com/global-credit/credit_core/internal/infrastructure/breaker"
	"github.com/global-credit/credit_core/internal/infrastructure/config"
	"github.com/global-credit/credit_core/internal/infrastructure/lock"
	"github.com/global-credit/credit_core/internal/infrastructure/pubsub"
	"github.com/global-credit/credit_core/internal/infrastructure/queue"
	"github.com/global-credit/credit_core/internal/infrastructure/redisconn"
	"github.com/global-credit/credit_core/internal/infrastructure/repositories"
	"github.com/global-credit/credit_core/internal/realtime"
	"github.com/global-credit/credit_core/internal/workers/application_processor"
	"github.com/global-credit/credit_core/internal/workers/maintenance"
	"github.com/global-credit/credit_core/internal/workers/queue_bridge"
	"github.com/global-credit/credit_core/pkg/crypto"
	"github.com/global-credit/credit_core/pkg/logger"
)

// Container holds every constructed component
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Encryptor *crypto.Encryptor

	AppRepo         *repositories.ApplicationRepository
	PendingJobRepo  *repositories.PendingJobRepository
	FailedJobRepo   *repositories.FailedJobRepository
	WebhookRepo     *repositories.WebhookEventRepository
	MaintenanceRepo *repositories.MaintenanceRepository

	Breakers   *breaker.Registry
	Locks      *lock.Service
	Queue      *queue.Queue
	Publisher  *pubsub.Publisher
	Subscriber *pubsub.Subscriber
	Hub        *realtime.Hub

	Strategies *strategies.Registry

	AppService     *application.Service
	WebhookService *webhook.Service

	Bridge            *queue_bridge.Bridge
	Processor         *application_processor.Worker
	MaintenanceWorker *maintenance.Worker
}

// NewContainer builds the full dependency graph
func NewContainer(cfg *config.Config, db *sqlx.DB, log *logger.Logger) (*Container, error) {
	redisClient, err := redisconn.Connect(context.Background(), &cfg.Redis, log.Zap())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordination broker: %w", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	c := &Container{
		Config:    cfg,
		Logger:    log,
		DB:        db,
		Redis:     redisClient,
		Encryptor: encryptor,
	}

	c.AppRepo = repositories.NewApplicationRepository(db, log)
	c.PendingJobRepo = repositories.NewPendingJobRepository(db, log)
	c.FailedJobRepo = repositories.NewFailedJobRepository(db, log)
	c.WebhookRepo = repositories.NewWebhookEventRepository(db, log)
	c.MaintenanceRepo = repositories.NewMaintenanceRepository(db, log)

	c.Breakers = breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
	}, log.Zap())

	c.Locks = lock.NewService(redisClient, log.Zap())
	c.Queue = queue.New(redisClient, cfg.Workers.QueueName)
	c.Publisher = pubsub.NewPublisher(redisClient, log.Zap())
	c.Subscriber = pubsub.NewSubscriber(redisClient, log.Zap())
	c.Hub = realtime.NewHub(log.Zap())

	providerClient := bankingprovider.NewClient(cfg.Providers.BaseURLs, cfg.Providers.RequestTimeout, log.Zap())
	c.Strategies = strategies.NewRegistry(providerClient)

	c.AppService = application.NewService(
		c.AppRepo,
		c.Strategies,
		c.Breakers,
		c.Publisher,
		encryptor,
		log,
	)

	c.WebhookService = webhook.NewService(
		c.AppRepo,
		c.WebhookRepo,
		c.Publisher,
		log,
	)

	c.Bridge = queue_bridge.NewBridge(queue_bridge.Config{
		PollInterval:     cfg.Workers.BridgeInterval,
		BatchSize:        cfg.Workers.BridgeBatchSize,
		OrphanSweepEvery: cfg.Workers.OrphanSweepEvery,
		OrphanSweepAfter: cfg.Workers.OrphanSweepAfter,
	}, db, c.PendingJobRepo, c.Queue, log)

	c.Processor, err = application_processor.NewWorker(application_processor.Config{
		Concurrency:       cfg.Workers.Concurrency,
		TaskTimeout:       cfg.Workers.TaskTimeout,
		MaxRetries:        cfg.Workers.MaxRetries,
		LockTTL:           cfg.Workers.LockTTL,
		LockAcquireBudget: cfg.Workers.LockAcquireBudget,
		PopWait:           5 * time.Second,
	}, c.Queue, c.PendingJobRepo, c.FailedJobRepo, c.AppService, c.Locks, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create application processor: %w", err)
	}

	c.MaintenanceWorker = maintenance.NewWorker(maintenance.Config{
		PartitionSchedule:     cfg.Maintenance.PartitionSchedule,
		WebhookTTLSchedule:    cfg.Maintenance.WebhookTTLSchedule,
		DLQRetrySchedule:      cfg.Maintenance.DLQRetrySchedule,
		WebhookRetention:      time.Duration(cfg.Maintenance.WebhookRetentionDays) * 24 * time.Hour,
		PartitionMonthsAhead:  cfg.Maintenance.PartitionMonthsAhead,
		PartitionRowThreshold: cfg.Maintenance.PartitionRowThreshold,
		StalePendingAfter:     cfg.Workers.StalePendingAfter,
		DLQRetryBatch:         100,
	}, c.AppRepo, c.PendingJobRepo, c.FailedJobRepo, c.WebhookRepo, c.MaintenanceRepo, c.AppService, log)

	return c, nil
}
