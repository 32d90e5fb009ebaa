package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/pkg/logger"
)

const pendingJobColumns = `
	id, application_id, task_name, job_args, job_kwargs, status,
	queue_handle, error_message, retry_count, created_at, enqueued_at,
	processed_at, updated_at`

// PendingJobRepository manages the durable job table written by the
// enqueue trigger
type PendingJobRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewPendingJobRepository creates a new pending job repository
func NewPendingJobRepository(db *sqlx.DB, logger *logger.Logger) *PendingJobRepository {
	return &PendingJobRepository{db: db, logger: logger}
}

// ClaimPending selects up to limit pending rows inside the caller's
// transaction, oldest first, skipping rows locked by concurrent bridge
// workers. The claim only becomes visible when the caller commits, so a
// crash between queue push and commit leaves the rows pending for the
// next tick (at-least-once enqueue).
func (r *PendingJobRepository) ClaimPending(ctx context.Context, tx *sqlx.Tx, limit int) ([]*entities.PendingJob, error) {
	query := `
		SELECT ` + pendingJobColumns + `
		FROM pending_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	var jobs []*entities.PendingJob
	if err := tx.SelectContext(ctx, &jobs, query, limit); err != nil {
		r.logger.Error("Failed to claim pending jobs", "error", err)
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return jobs, nil
}

// MarkEnqueued records the queue handle within the claiming transaction
func (r *PendingJobRepository) MarkEnqueued(ctx context.Context, tx *sqlx.Tx, job *entities.PendingJob, handle string) error {
	job.MarkEnqueued(handle)

	query := `
		UPDATE pending_jobs
		SET status = 'enqueued', queue_handle = $1, enqueued_at = $2
		WHERE id = $3`

	if _, err := tx.ExecContext(ctx, query, handle, job.EnqueuedAt, job.ID); err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	return nil
}

// GetByID loads a job row
func (r *PendingJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.PendingJob, error) {
	var job entities.PendingJob
	err := r.db.GetContext(ctx, &job, `SELECT `+pendingJobColumns+` FROM pending_jobs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, domainerrors.NotFoundError("pending job")
	}
	if err != nil {
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return &job, nil
}

// GetByHandle resolves the job row a queue task came from
func (r *PendingJobRepository) GetByHandle(ctx context.Context, handle string) (*entities.PendingJob, error) {
	var job entities.PendingJob
	err := r.db.GetContext(ctx, &job, `SELECT `+pendingJobColumns+` FROM pending_jobs WHERE queue_handle = $1`, handle)
	if err == sql.ErrNoRows {
		return nil, domainerrors.NotFoundError("pending job")
	}
	if err != nil {
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return &job, nil
}

// MarkProcessing flags a row as picked up by a worker. Only an enqueued or
// pending row can move to processing.
func (r *PendingJobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE pending_jobs
		SET status = 'processing'
		WHERE id = $1 AND status IN ('pending', 'enqueued')`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domainerrors.New(domainerrors.KindStateTransition, "pending job is not claimable")
	}
	return nil
}

// MarkCompleted terminates the row successfully; message annotates skips
func (r *PendingJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE pending_jobs
		SET status = 'completed', processed_at = NOW(), error_message = NULLIF($2, '')
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, message); err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	return nil
}

// MarkFailed terminates the row with the final error
func (r *PendingJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMessage string, retryCount int) error {
	query := `
		UPDATE pending_jobs
		SET status = 'failed', processed_at = NOW(), error_message = $2, retry_count = $3
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, errMessage, retryCount); err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	return nil
}

// Requeue returns a row to pending (lock acquisition error, cancelled or
// timed-out task)
func (r *PendingJobRepository) Requeue(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE pending_jobs
		SET status = 'pending', queue_handle = NULL, enqueued_at = NULL,
		    retry_count = retry_count + 1
		WHERE id = $1 AND status IN ('enqueued', 'processing')`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	return nil
}

// ResetOrphans reclaims processing rows older than the cutoff, returning
// them to pending for re-enqueue. Covers workers that died holding a task.
func (r *PendingJobRepository) ResetOrphans(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE pending_jobs
		SET status = 'pending', queue_handle = NULL, enqueued_at = NULL,
		    retry_count = retry_count + 1
		WHERE status = 'processing'
		  AND updated_at < NOW() - make_interval(secs => $1)`

	res, err := r.db.ExecContext(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, domainerrors.DatabaseUnavailableError(err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.logger.Warn("Reclaimed orphaned processing jobs", "count", n)
	}
	return n, nil
}

// CreateRetry inserts a fresh pending row for a dead-lettered job
func (r *PendingJobRepository) CreateRetry(ctx context.Context, failed *entities.FailedJob) (*entities.PendingJob, error) {
	job := &entities.PendingJob{
		ID:        uuid.New(),
		TaskName:  failed.TaskName,
		JobArgs:   failed.JobArgs,
		JobKwargs: failed.JobKwargs,
		Status:    entities.JobStatusPending,
	}
	if appID, ok := failed.JobArgs["application_id"].(string); ok {
		if parsed, err := uuid.Parse(appID); err == nil {
			job.ApplicationID = parsed
		}
	}

	query := `
		INSERT INTO pending_jobs (id, application_id, task_name, job_args, job_kwargs, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		job.ID, job.ApplicationID, job.TaskName, job.JobArgs, job.JobKwargs,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return job, nil
}
