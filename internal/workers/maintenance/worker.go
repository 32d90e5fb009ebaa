// Package maintenance runs the scheduled housekeeping jobs: partition
// assurance, webhook-event retention, dead-letter auto-retry and the
// optional stale-application cancellation.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/global-credit/credit_core/internal/domain/services/application"
	"github.com/global-credit/credit_core/internal/infrastructure/repositories"
	"github.com/global-credit/credit_core/pkg/logger"
)

// Config holds maintenance schedules and policies
type Config struct {
	PartitionSchedule     string
	WebhookTTLSchedule    string
	DLQRetrySchedule      string
	WebhookRetention      time.Duration
	PartitionMonthsAhead  int
	PartitionRowThreshold int64
	StalePendingAfter     time.Duration // zero disables auto-cancellation
	DLQRetryBatch         int
}

// DefaultConfig returns the default maintenance configuration
func DefaultConfig() Config {
	return Config{
		PartitionSchedule:     "0 2 * * *",
		WebhookTTLSchedule:    "30 2 * * *",
		DLQRetrySchedule:      "0 * * * *",
		WebhookRetention:      30 * 24 * time.Hour,
		PartitionMonthsAhead:  3,
		PartitionRowThreshold: 1_000_000,
		DLQRetryBatch:         100,
	}
}

// Worker schedules and executes the maintenance jobs
type Worker struct {
	config          Config
	appRepo         *repositories.ApplicationRepository
	jobRepo         *repositories.PendingJobRepository
	failedRepo      *repositories.FailedJobRepository
	webhookRepo     *repositories.WebhookEventRepository
	maintenanceRepo *repositories.MaintenanceRepository
	appService      *application.Service
	logger          *logger.Logger

	cron *cron.Cron
}

// NewWorker creates the maintenance worker
func NewWorker(
	config Config,
	appRepo *repositories.ApplicationRepository,
	jobRepo *repositories.PendingJobRepository,
	failedRepo *repositories.FailedJobRepository,
	webhookRepo *repositories.WebhookEventRepository,
	maintenanceRepo *repositories.MaintenanceRepository,
	appService *application.Service,
	logger *logger.Logger,
) *Worker {
	return &Worker{
		config:          config,
		appRepo:         appRepo,
		jobRepo:         jobRepo,
		failedRepo:      failedRepo,
		webhookRepo:     webhookRepo,
		maintenanceRepo: maintenanceRepo,
		appService:      appService,
		logger:          logger,
		cron:            cron.New(),
	}
}

// Start registers and launches the cron entries
func (w *Worker) Start() error {
	if _, err := w.cron.AddFunc(w.config.PartitionSchedule, w.ensurePartitions); err != nil {
		return err
	}
	if _, err := w.cron.AddFunc(w.config.WebhookTTLSchedule, w.purgeWebhookEvents); err != nil {
		return err
	}
	if _, err := w.cron.AddFunc(w.config.DLQRetrySchedule, w.retryFailedJobs); err != nil {
		return err
	}
	if w.config.StalePendingAfter > 0 {
		if _, err := w.cron.AddFunc(w.config.DLQRetrySchedule, w.cancelStalePending); err != nil {
			return err
		}
	}

	w.cron.Start()
	w.logger.Info("Maintenance worker started",
		"partition_schedule", w.config.PartitionSchedule,
		"webhook_ttl_schedule", w.config.WebhookTTLSchedule,
		"dlq_retry_schedule", w.config.DLQRetrySchedule,
		"stale_pending_after", w.config.StalePendingAfter,
	)
	return nil
}

// Stop halts the scheduler and waits for running jobs
func (w *Worker) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.logger.Info("Maintenance worker stopped")
}

func (w *Worker) ensurePartitions() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	partitioned, err := w.maintenanceRepo.IsPartitioned(ctx, "applications")
	if err != nil {
		w.logger.Error("Partition check failed", "error", err)
		return
	}

	if !partitioned {
		count, err := w.appRepo.CountRows(ctx)
		if err != nil {
			w.logger.Error("Row count failed", "error", err)
			return
		}
		if count < w.config.PartitionRowThreshold {
			return
		}
		w.logger.Warn("Applications table crossed the partition threshold, converting",
			"rows", count,
			"threshold", w.config.PartitionRowThreshold,
		)
		if err := w.maintenanceRepo.ConvertToPartitioned(ctx, "applications"); err != nil {
			w.logger.Error("Partition conversion failed", "error", err)
			return
		}
	}

	for _, table := range []string{"applications", "audit_logs"} {
		if err := w.maintenanceRepo.EnsureMonthlyPartitions(ctx, table, w.config.PartitionMonthsAhead); err != nil {
			w.logger.Error("Partition assurance failed", "error", err, "table", table)
		}
	}
}

func (w *Worker) purgeWebhookEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := w.webhookRepo.DeleteOlderThan(ctx, w.config.WebhookRetention)
	if err != nil {
		w.logger.Error("Webhook event purge failed", "error", err)
		return
	}
	if deleted > 0 {
		w.logger.Info("Purged expired webhook events", "count", deleted)
	}
}

// retryFailedJobs re-enqueues retryable dead-letter rows by creating fresh
// pending_jobs; the queue bridge picks them up on its next tick.
func (w *Worker) retryFailedJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	jobs, err := w.failedRepo.ListRetryable(ctx, w.config.DLQRetryBatch)
	if err != nil {
		w.logger.Error("Failed to list retryable jobs", "error", err)
		return
	}

	retried := 0
	for _, failed := range jobs {
		if _, err := w.jobRepo.CreateRetry(ctx, failed); err != nil {
			w.logger.Error("Failed to re-enqueue dead-lettered job", "error", err, "job_id", failed.JobID)
			continue
		}
		if err := w.failedRepo.MarkRetried(ctx, failed.ID); err != nil {
			w.logger.Error("Failed to mark job retried", "error", err, "job_id", failed.JobID)
			continue
		}
		retried++
	}

	if retried > 0 {
		w.logger.Info("Re-enqueued dead-lettered jobs", "count", retried)
	}
}

func (w *Worker) cancelStalePending() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	apps, err := w.appRepo.ListStalePending(ctx, w.config.StalePendingAfter, 500)
	if err != nil {
		w.logger.Error("Failed to list stale pending applications", "error", err)
		return
	}

	for _, app := range apps {
		if _, err := w.appService.Cancel(ctx, app.ID, "system:maintenance", "stale pending timeout"); err != nil {
			w.logger.Warn("Failed to cancel stale application", "error", err, "application_id", app.ID)
		}
	}

	if len(apps) > 0 {
		w.logger.Info("Cancelled stale pending applications", "count", len(apps))
	}
}
