package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/pkg/logger"
)

func newMockWebhookRepo(t *testing.T) (*WebhookEventRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sdb := sqlx.NewDb(db, "sqlmock")
	return NewWebhookEventRepository(sdb, logger.NewLogger(zap.NewNop())), mock
}

func TestWebhookInsertMapsDuplicateKey(t *testing.T) {
	repo, mock := newMockWebhookRepo(t)

	mock.ExpectQuery(`INSERT INTO webhook_events`).WillReturnError(&pq.Error{
		Code:       "23505",
		Constraint: "webhook_events_idempotency_key_key",
	})

	err := repo.Insert(context.Background(), &entities.WebhookEvent{
		ID:             uuid.New(),
		IdempotencyKey: "r1",
		ApplicationID:  uuid.New(),
		Payload:        entities.JSONDocument{"outcome": "APPROVED"},
		Status:         entities.WebhookEventProcessing,
	})
	require.Error(t, err)
	assert.True(t, domainerrors.IsIdempotencyHit(err))
}

func TestWebhookInsertSucceeds(t *testing.T) {
	repo, mock := newMockWebhookRepo(t)

	mock.ExpectQuery(`INSERT INTO webhook_events`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	event := &entities.WebhookEvent{
		ID:             uuid.New(),
		IdempotencyKey: "r1",
		ApplicationID:  uuid.New(),
		Payload:        entities.JSONDocument{"outcome": "APPROVED"},
		Status:         entities.WebhookEventProcessing,
	}
	require.NoError(t, repo.Insert(context.Background(), event))
	assert.False(t, event.CreatedAt.IsZero())
}

func TestDeleteOlderThanReportsCount(t *testing.T) {
	repo, mock := newMockWebhookRepo(t)

	mock.ExpectExec(`DELETE FROM webhook_events`).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteOlderThan(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
}
