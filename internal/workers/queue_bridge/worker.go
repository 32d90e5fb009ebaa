// Package queue_bridge moves trigger-created pending_jobs rows onto the
// work queue. The pending → enqueued transition commits atomically with
// recording the queue handle, so a crash between push and commit leaves
// the row visible to the next tick: at-least-once enqueue, deduplicated
// downstream.
package queue_bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/global-credit/credit_core/internal/domain/entities"
	"github.com/global-credit/credit_core/internal/infrastructure/database"
	"github.com/global-credit/credit_core/internal/infrastructure/queue"
	"github.com/global-credit/credit_core/internal/infrastructure/repositories"
	"github.com/global-credit/credit_core/pkg/logger"
	"github.com/global-credit/credit_core/pkg/metrics"
)

// Config holds bridge tuning
type Config struct {
	PollInterval     time.Duration
	BatchSize        int
	OrphanSweepEvery time.Duration
	OrphanSweepAfter time.Duration
}

// DefaultConfig returns the default bridge configuration
func DefaultConfig() Config {
	return Config{
		PollInterval:     60 * time.Second,
		BatchSize:        100,
		OrphanSweepEvery: 5 * time.Minute,
		OrphanSweepAfter: 10 * time.Minute,
	}
}

// Bridge periodically drains pending_jobs onto the work queue
type Bridge struct {
	config  Config
	db      *sqlx.DB
	jobRepo *repositories.PendingJobRepository
	queue   *queue.Queue
	logger  *logger.Logger

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewBridge creates a queue bridge
func NewBridge(
	config Config,
	db *sqlx.DB,
	jobRepo *repositories.PendingJobRepository,
	q *queue.Queue,
	logger *logger.Logger,
) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		config:         config,
		db:             db,
		jobRepo:        jobRepo,
		queue:          q,
		logger:         logger,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Start launches the bridge loop and the orphan sweeper
func (b *Bridge) Start(ctx context.Context) error {
	b.logger.Info("Starting queue bridge",
		"poll_interval", b.config.PollInterval,
		"batch_size", b.config.BatchSize,
	)

	b.wg.Add(1)
	go b.run(ctx)

	b.wg.Add(1)
	go b.sweepOrphans(ctx)

	return nil
}

// Shutdown stops the bridge, waiting up to timeout for the current tick
func (b *Bridge) Shutdown(timeout time.Duration) error {
	b.shutdownCancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Queue bridge shutdown complete")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("queue bridge shutdown timeout exceeded")
	}
}

func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.PollInterval)
	defer ticker.Stop()

	// Drain immediately on start so restarts don't add a full interval of
	// latency to already-pending jobs
	b.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.shutdownCtx.Done():
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick claims one batch and enqueues it in a single transaction
func (b *Bridge) tick(ctx context.Context) {
	var bridged int

	err := database.WithTransaction(ctx, b.db, func(tx *sqlx.Tx) error {
		jobs, err := b.jobRepo.ClaimPending(ctx, tx, b.config.BatchSize)
		if err != nil {
			return err
		}

		for _, job := range jobs {
			envelope := b.envelope(ctx, job)
			handle, err := b.queue.Push(ctx, envelope)
			if err != nil {
				// Abort the whole batch; every claimed row stays pending
				// and the next tick retries.
				return err
			}
			if err := b.jobRepo.MarkEnqueued(ctx, tx, job, handle); err != nil {
				return err
			}
			bridged++
		}
		return nil
	})

	if err != nil {
		b.logger.Error("Queue bridge tick failed", "error", err)
		return
	}

	if bridged > 0 {
		metrics.PendingJobsEnqueuedCounter.Add(float64(bridged))
		b.logger.Info("Bridged pending jobs to work queue", "count", bridged)
	}

	if depth, err := b.queue.Depth(ctx); err == nil {
		metrics.QueueDepthGauge.Set(float64(depth))
	}
}

func (b *Bridge) envelope(ctx context.Context, job *entities.PendingJob) *queue.TaskEnvelope {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return &queue.TaskEnvelope{
		TaskName:     job.TaskName,
		Args:         []string{job.ApplicationID.String()},
		Kwargs:       map[string]interface{}(job.JobKwargs),
		TraceContext: map[string]string(carrier),
	}
}

func (b *Bridge) sweepOrphans(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.OrphanSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.shutdownCtx.Done():
			return
		case <-ticker.C:
			if _, err := b.jobRepo.ResetOrphans(ctx, b.config.OrphanSweepAfter); err != nil {
				b.logger.Error("Orphan sweep failed", "error", err)
			}
		}
	}
}
