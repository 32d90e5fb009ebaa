package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/pkg/logger"
	"github.com/global-credit/credit_core/pkg/metrics"
)

const failedJobColumns = `
	id, job_id, task_name, job_args, job_kwargs, error_type, error_message,
	error_traceback, retry_count, max_retries, status, is_retryable,
	pending_job_id, created_at, updated_at`

// FailedJobRepository manages the dead-letter table
type FailedJobRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewFailedJobRepository creates a new failed job repository
func NewFailedJobRepository(db *sqlx.DB, logger *logger.Logger) *FailedJobRepository {
	return &FailedJobRepository{db: db, logger: logger}
}

// Insert records a dead-lettered job with its full failure context
func (r *FailedJobRepository) Insert(ctx context.Context, job *entities.FailedJob) error {
	query := `
		INSERT INTO failed_jobs (
			job_id, task_name, job_args, job_kwargs, error_type,
			error_message, error_traceback, retry_count, max_retries,
			status, is_retryable, pending_job_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (job_id) DO NOTHING
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		job.JobID,
		job.TaskName,
		job.JobArgs,
		job.JobKwargs,
		job.ErrorType,
		job.ErrorMessage,
		job.ErrorTraceback,
		job.RetryCount,
		job.MaxRetries,
		string(job.Status),
		job.IsRetryable,
		job.PendingJobID,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)

	if err == sql.ErrNoRows {
		// Already dead-lettered; at-least-once delivery makes this benign
		r.logger.Debug("Failed job already recorded", "job_id", job.JobID)
		return nil
	}
	if err != nil {
		r.logger.Error("Failed to insert failed job", "error", err, "job_id", job.JobID)
		return domainerrors.DatabaseUnavailableError(err)
	}

	metrics.FailedJobsCounter.WithLabelValues(job.ErrorType).Inc()
	return nil
}

// ListRetryable returns transient-class failures awaiting auto-retry
func (r *FailedJobRepository) ListRetryable(ctx context.Context, limit int) ([]*entities.FailedJob, error) {
	query := `
		SELECT ` + failedJobColumns + `
		FROM failed_jobs
		WHERE is_retryable = TRUE AND status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`

	var jobs []*entities.FailedJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return jobs, nil
}

// MarkRetried flags a dead-letter row as re-enqueued
func (r *FailedJobRepository) MarkRetried(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE failed_jobs SET status = 'retried' WHERE id = $1`, id); err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	return nil
}

// UpdateStatus moves a row through the review workflow
func (r *FailedJobRepository) UpdateStatus(ctx context.Context, id int64, status entities.FailedJobStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE failed_jobs SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domainerrors.NotFoundError("failed job")
	}
	return nil
}

// List returns dead-letter rows newest first for the admin surface
func (r *FailedJobRepository) List(ctx context.Context, limit, offset int) ([]*entities.FailedJob, error) {
	query := `
		SELECT ` + failedJobColumns + `
		FROM failed_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	var jobs []*entities.FailedJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit, offset); err != nil {
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return jobs, nil
}

// GetByJobID loads a dead-letter row by its original job id
func (r *FailedJobRepository) GetByJobID(ctx context.Context, jobID uuid.UUID) (*entities.FailedJob, error) {
	var job entities.FailedJob
	err := r.db.GetContext(ctx, &job, `SELECT `+failedJobColumns+` FROM failed_jobs WHERE job_id = $1`, jobID)
	if err == sql.ErrNoRows {
		return nil, domainerrors.NotFoundError("failed job")
	}
	if err != nil {
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return &job, nil
}
