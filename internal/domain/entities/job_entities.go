package entities

import (
	"time"

	"github.com/google/uuid"
)

// TaskProcessCreditApplication is the task name written by the enqueue
// trigger and consumed by the worker pool.
const TaskProcessCreditApplication = "process_credit_application"

// PendingJobStatus represents the status of a pending job row
type PendingJobStatus string

const (
	JobStatusPending    PendingJobStatus = "pending"
	JobStatusEnqueued   PendingJobStatus = "enqueued"
	JobStatusProcessing PendingJobStatus = "processing"
	JobStatusCompleted  PendingJobStatus = "completed"
	JobStatusFailed     PendingJobStatus = "failed"
)

// PendingJob is the durable enqueue record created by the database trigger.
// A row must pass through enqueued before processing; completed and failed
// are terminal for the row.
type PendingJob struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	ApplicationID uuid.UUID        `json:"application_id" db:"application_id"`
	TaskName      string           `json:"task_name" db:"task_name"`
	JobArgs       JSONDocument     `json:"job_args" db:"job_args"`
	JobKwargs     JSONDocument     `json:"job_kwargs" db:"job_kwargs"`
	Status        PendingJobStatus `json:"status" db:"status"`
	QueueHandle   *string          `json:"queue_handle,omitempty" db:"queue_handle"`
	ErrorMessage  *string          `json:"error_message,omitempty" db:"error_message"`
	RetryCount    int              `json:"retry_count" db:"retry_count"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	EnqueuedAt    *time.Time       `json:"enqueued_at,omitempty" db:"enqueued_at"`
	ProcessedAt   *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// MarkEnqueued records the queue handle after a successful push
func (j *PendingJob) MarkEnqueued(handle string) {
	now := time.Now().UTC()
	j.Status = JobStatusEnqueued
	j.QueueHandle = &handle
	j.EnqueuedAt = &now
}

// MarkProcessing flags the row as picked up by a worker
func (j *PendingJob) MarkProcessing() {
	j.Status = JobStatusProcessing
}

// MarkCompleted terminates the row successfully
func (j *PendingJob) MarkCompleted(message string) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ProcessedAt = &now
	if message != "" {
		j.ErrorMessage = &message
	}
}

// MarkFailed terminates the row with an error
func (j *PendingJob) MarkFailed(err error) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.ProcessedAt = &now
	if err != nil {
		msg := err.Error()
		j.ErrorMessage = &msg
	}
}

// FailedJobStatus represents the review status of a dead-letter row
type FailedJobStatus string

const (
	FailedJobPending     FailedJobStatus = "pending"
	FailedJobReviewed    FailedJobStatus = "reviewed"
	FailedJobReprocessed FailedJobStatus = "reprocessed"
	FailedJobIgnored     FailedJobStatus = "ignored"
	FailedJobRetried     FailedJobStatus = "retried"
)

// FailedJob is a dead-letter record with full failure context
type FailedJob struct {
	ID             int64           `json:"id" db:"id"`
	JobID          uuid.UUID       `json:"job_id" db:"job_id"`
	TaskName       string          `json:"task_name" db:"task_name"`
	JobArgs        JSONDocument    `json:"job_args" db:"job_args"`
	JobKwargs      JSONDocument    `json:"job_kwargs" db:"job_kwargs"`
	ErrorType      string          `json:"error_type" db:"error_type"`
	ErrorMessage   string          `json:"error_message" db:"error_message"`
	ErrorTraceback *string         `json:"error_traceback,omitempty" db:"error_traceback"`
	RetryCount     int             `json:"retry_count" db:"retry_count"`
	MaxRetries     int             `json:"max_retries" db:"max_retries"`
	Status         FailedJobStatus `json:"status" db:"status"`
	IsRetryable    bool            `json:"is_retryable" db:"is_retryable"`
	PendingJobID   *uuid.UUID      `json:"pending_job_id,omitempty" db:"pending_job_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}
