// Package application_processor is the worker pool executing
// process_credit_application tasks from the work queue.
package application_processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/internal/domain/services/application"
	"github.com/global-credit/credit_core/internal/infrastructure/lock"
	"github.com/global-credit/credit_core/internal/infrastructure/queue"
	"github.com/global-credit/credit_core/internal/infrastructure/repositories"
	"github.com/global-credit/credit_core/pkg/logger"
	"github.com/global-credit/credit_core/pkg/metrics"
	"github.com/global-credit/credit_core/pkg/retry"
	"github.com/global-credit/credit_core/pkg/tracing"
)

// Config holds worker pool tuning
type Config struct {
	Concurrency       int
	TaskTimeout       time.Duration
	MaxRetries        int
	LockTTL           time.Duration
	LockAcquireBudget time.Duration
	PopWait           time.Duration
}

// DefaultConfig returns the default worker configuration
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		TaskTimeout:       5 * time.Minute,
		MaxRetries:        3,
		LockTTL:           5 * time.Minute,
		LockAcquireBudget: 2 * time.Second,
		PopWait:           5 * time.Second,
	}
}

// Worker consumes and executes processing tasks
type Worker struct {
	config     Config
	queue      *queue.Queue
	jobRepo    *repositories.PendingJobRepository
	failedRepo *repositories.FailedJobRepository
	appService *application.Service
	locks      *lock.Service
	logger     *logger.Logger

	processedCounter metric.Int64Counter

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewWorker creates the worker pool
func NewWorker(
	config Config,
	q *queue.Queue,
	jobRepo *repositories.PendingJobRepository,
	failedRepo *repositories.FailedJobRepository,
	appService *application.Service,
	locks *lock.Service,
	logger *logger.Logger,
) (*Worker, error) {
	ctx, cancel := context.WithCancel(context.Background())

	meter := otel.Meter("application-processor")
	processedCounter, err := meter.Int64Counter(
		"task.processed.total",
		metric.WithDescription("Total number of processing tasks handled"),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create processed counter: %w", err)
	}

	return &Worker{
		config:           config,
		queue:            q,
		jobRepo:          jobRepo,
		failedRepo:       failedRepo,
		appService:       appService,
		locks:            locks,
		logger:           logger,
		processedCounter: processedCounter,
		shutdownCtx:      ctx,
		shutdownCancel:   cancel,
	}, nil
}

// Start launches the worker goroutines
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting application processor", "concurrency", w.config.Concurrency)

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
	return nil
}

// Shutdown stops the pool from taking new tasks and waits up to timeout for
// in-flight tasks to finish. Tasks still running at the deadline are not
// cancelled or requeued by it: their lock leases expire with the lock TTL
// and their processing pending_jobs are reclaimed by the orphan sweep.
func (w *Worker) Shutdown(timeout time.Duration) error {
	w.logger.Info("Shutting down application processor", "timeout", timeout)
	w.shutdownCancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Application processor shutdown complete")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("application processor shutdown timeout exceeded")
	}
}

func (w *Worker) loop(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdownCtx.Done():
			return
		default:
		}

		task, err := w.queue.Pop(w.shutdownCtx, w.config.PopWait)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if w.shutdownCtx.Err() != nil {
				return
			}
			w.logger.Error("Failed to pop task", "error", err, "worker_id", workerID)
			time.Sleep(time.Second)
			continue
		}

		w.handle(ctx, task, workerID)
	}
}

func (w *Worker) handle(ctx context.Context, task *queue.TaskEnvelope, workerID int) {
	if task.TaskName != entities.TaskProcessCreditApplication {
		w.logger.Warn("Dropping unknown task", "task_name", task.TaskName)
		return
	}

	// Adopt the producing trace, if any, so worker spans join it
	taskCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(task.TraceContext))

	applicationID := ""
	if len(task.Args) > 0 {
		applicationID = task.Args[0]
	}
	taskCtx, span := tracing.StartTaskSpan(taskCtx, applicationID, task.Handle)
	defer span.End()

	start := time.Now()
	status := w.execute(taskCtx, task)
	duration := time.Since(start)

	span.SetAttributes(tracing.AttrTaskStatus.String(status))
	metrics.TaskDurationHistogram.WithLabelValues(status).Observe(duration.Seconds())
	w.processedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))

	w.logger.Debug("Task finished",
		"worker_id", workerID,
		"handle", task.Handle,
		"status", status,
		"duration", duration,
	)
}

// execute runs one task end to end and returns a status label for metrics
func (w *Worker) execute(ctx context.Context, task *queue.TaskEnvelope) string {
	job, err := w.jobRepo.GetByHandle(ctx, task.Handle)
	if err != nil {
		// The row may still be in the uncommitted bridge transaction; if
		// that transaction rolls back, the row stays pending and the next
		// bridge tick enqueues it again.
		w.logger.Warn("No pending job for task handle", "handle", task.Handle, "error", err)
		return "unmatched"
	}
	if job.Status == entities.JobStatusCompleted || job.Status == entities.JobStatusFailed {
		return "already_terminal"
	}

	if len(task.Args) == 0 {
		w.deadLetter(ctx, job, domainerrors.New(domainerrors.KindInvalidApplicationID, "task has no application id argument"), 0)
		return "failed"
	}

	applicationID, err := uuid.Parse(task.Args[0])
	if err != nil {
		w.deadLetter(ctx, job, domainerrors.New(domainerrors.KindInvalidApplicationID, "application id is not a valid UUID: "+task.Args[0]), 0)
		return "failed"
	}

	if err := w.jobRepo.MarkProcessing(ctx, job.ID); err != nil {
		w.logger.Warn("Pending job not claimable", "job_id", job.ID, "error", err)
		return "not_claimable"
	}

	// Single-flight per application: losing the lock race means another
	// worker owns this application right now.
	lease, err := w.locks.AcquireWithBudget(ctx, applicationID, w.config.LockTTL, w.config.LockAcquireBudget)
	if errors.Is(err, lock.ErrNotAcquired) {
		w.markCompleted(job.ID, "skipped (already processing)")
		return "skipped"
	}
	if err != nil {
		w.requeue(job.ID)
		w.logger.Error("Lock acquisition failed", "error", err, "application_id", applicationID)
		return "requeued"
	}
	// Release must run on every exit path; the lease token guard makes a
	// double release harmless.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.locks.Release(releaseCtx, lease); err != nil {
			w.logger.Warn("Lock release failed", "error", err, "application_id", applicationID)
		}
	}()

	taskCtx, cancel := context.WithTimeout(ctx, w.config.TaskTimeout)
	defer cancel()

	attempts := 0
	retrier := retry.NewRetrier(retry.Policy{
		MaxRetries:    w.config.MaxRetries,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		Jitter:        true,
		RetryableFunc: domainerrors.IsTransient,
	}, w.logger.Zap())

	result, err := retrier.DoWithResult(taskCtx, func() (interface{}, error) {
		attempts++
		if attempts > 1 {
			metrics.TaskRetriesCounter.Inc()
		}
		return w.appService.Process(taskCtx, applicationID)
	})

	if err != nil {
		if taskCtx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Shutdown or deadline: leave the job observable for the
			// orphan sweep / next bridge tick rather than dead-lettering.
			w.requeue(job.ID)
			return "requeued"
		}
		w.deadLetter(ctx, job, err, attempts-1)
		return "failed"
	}

	processResult := result.(*application.ProcessResult)
	if processResult.Skipped {
		w.markCompleted(job.ID, processResult.SkipReason)
		return "skipped"
	}

	w.markCompleted(job.ID, "")
	return "completed"
}

// deadLetter records the failure context and terminates the pending job
func (w *Worker) deadLetter(ctx context.Context, job *entities.PendingJob, cause error, retries int) {
	kind := domainerrors.KindOf(cause)
	failed := &entities.FailedJob{
		JobID:        job.ID,
		TaskName:     job.TaskName,
		JobArgs:      job.JobArgs,
		JobKwargs:    job.JobKwargs,
		ErrorType:    string(kind),
		ErrorMessage: cause.Error(),
		RetryCount:   retries,
		MaxRetries:   w.config.MaxRetries,
		Status:       entities.FailedJobPending,
		IsRetryable:  domainerrors.IsTransient(cause),
		PendingJobID: &job.ID,
	}

	dlCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.failedRepo.Insert(dlCtx, failed); err != nil {
		w.logger.Error("Failed to record dead-lettered job", "error", err, "job_id", job.ID)
	}
	if err := w.jobRepo.MarkFailed(dlCtx, job.ID, cause.Error(), retries); err != nil {
		w.logger.Error("Failed to mark pending job failed", "error", err, "job_id", job.ID)
	}

	w.logger.Warn("Task dead-lettered",
		"job_id", job.ID,
		"error_type", kind,
		"error", cause,
		"is_retryable", failed.IsRetryable,
	)
}

func (w *Worker) markCompleted(jobID uuid.UUID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.jobRepo.MarkCompleted(ctx, jobID, message); err != nil {
		w.logger.Error("Failed to mark pending job completed", "error", err, "job_id", jobID)
	}
}

func (w *Worker) requeue(jobID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.jobRepo.Requeue(ctx, jobID); err != nil {
		w.logger.Error("Failed to requeue pending job", "error", err, "job_id", jobID)
	}
}
