package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/pkg/logger"
)

// WebhookEventRepository manages webhook delivery records
type WebhookEventRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *sqlx.DB, logger *logger.Logger) *WebhookEventRepository {
	return &WebhookEventRepository{db: db, logger: logger}
}

// Insert records a new delivery. A duplicate idempotency key returns a
// typed conflict so the handler can acknowledge the replay untouched.
func (r *WebhookEventRepository) Insert(ctx context.Context, event *entities.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (id, idempotency_key, application_id, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		event.ID,
		event.IdempotencyKey,
		event.ApplicationID,
		event.Payload,
		string(event.Status),
	).Scan(&event.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if asPQError(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domainerrors.IdempotencyHitError(event.IdempotencyKey)
		}
		r.logger.Error("Failed to insert webhook event", "error", err)
		return domainerrors.DatabaseUnavailableError(err)
	}
	return nil
}

// MarkProcessed closes the event successfully
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhook_events
		SET status = 'processed', processed_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	return nil
}

// MarkFailed closes the event with a reason
func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE webhook_events
		SET status = 'failed', error_message = $2, processed_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		return domainerrors.DatabaseUnavailableError(err)
	}
	return nil
}

// GetByIdempotencyKey loads a prior delivery record
func (r *WebhookEventRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entities.WebhookEvent, error) {
	query := `
		SELECT id, idempotency_key, application_id, payload, status,
		       error_message, processed_at, created_at
		FROM webhook_events
		WHERE idempotency_key = $1`

	var event entities.WebhookEvent
	err := r.db.GetContext(ctx, &event, query, key)
	if err == sql.ErrNoRows {
		return nil, domainerrors.NotFoundError("webhook event")
	}
	if err != nil {
		return nil, domainerrors.DatabaseUnavailableError(err)
	}
	return &event, nil
}

// DeleteOlderThan purges events past their retention window
func (r *WebhookEventRepository) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	query := `DELETE FROM webhook_events WHERE created_at < NOW() - make_interval(secs => $1)`

	res, err := r.db.ExecContext(ctx, query, retention.Seconds())
	if err != nil {
		return 0, domainerrors.DatabaseUnavailableError(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
