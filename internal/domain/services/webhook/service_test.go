package webhook

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
	"github.com/global-credit/credit_core/internal/infrastructure/repositories"
	"github.com/global-credit/credit_core/pkg/logger"
)

type recordingPublisher struct {
	messages []entities.RealtimeMessage
}

func (p *recordingPublisher) Publish(_ context.Context, msg entities.RealtimeMessage) {
	p.messages = append(p.messages, msg)
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewLogger(zap.NewNop())
	sdb := sqlx.NewDb(db, "sqlmock")
	publisher := &recordingPublisher{}

	svc := NewService(
		repositories.NewApplicationRepository(sdb, log),
		repositories.NewWebhookEventRepository(sdb, log),
		publisher,
		log,
	)
	return svc, mock, publisher
}

func confirmation(appID uuid.UUID) *entities.BankConfirmationWebhook {
	return &entities.BankConfirmationWebhook{
		ProviderReference: "r1",
		Provider:          "cirbe",
		ApplicationID:     appID.String(),
		Outcome:           "APPROVED",
	}
}

func applicationRows(id uuid.UUID, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "country", "full_name", "identity_document", "document_fingerprint",
		"requested_amount", "monthly_income", "currency", "idempotency_key", "status",
		"country_specific_data", "banking_data", "risk_score", "validation_errors",
		"created_at", "updated_at", "deleted_at",
	}).AddRow(
		id, "ES", []byte("name"), []byte("doc"), "fp",
		"15000.00", "3500.00", "EUR", nil, status,
		nil, nil, nil, nil,
		now, now, nil,
	)
}

func TestProcessRejectsMalformedApplicationID(t *testing.T) {
	svc, mock, _ := newTestService(t)

	webhook := confirmation(uuid.New())
	webhook.ApplicationID = "not-a-uuid"

	_, err := svc.Process(context.Background(), webhook, entities.JSONDocument{})
	require.Error(t, err)
	assert.Equal(t, domainerrors.KindInvalidApplicationID, domainerrors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRejectsUnknownOutcome(t *testing.T) {
	svc, mock, _ := newTestService(t)

	webhook := confirmation(uuid.New())
	webhook.Outcome = "EXPLODED"

	_, err := svc.Process(context.Background(), webhook, entities.JSONDocument{})
	require.Error(t, err)
	assert.True(t, domainerrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDuplicateDeliveryIsAcknowledged(t *testing.T) {
	svc, mock, publisher := newTestService(t)

	mock.ExpectQuery(`INSERT INTO webhook_events`).WillReturnError(&pq.Error{
		Code:       "23505",
		Constraint: "webhook_events_idempotency_key_key",
	})

	outcome, err := svc.Process(context.Background(), confirmation(uuid.New()), entities.JSONDocument{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Empty(t, publisher.messages, "a replay must not re-broadcast")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessInvalidTransitionMarksEventFailed(t *testing.T) {
	svc, mock, publisher := newTestService(t)
	appID := uuid.New()

	mock.ExpectQuery(`INSERT INTO webhook_events`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`SELECT .+ FROM applications`).
		WillReturnRows(applicationRows(appID, "APPROVED"))
	mock.ExpectExec(`UPDATE webhook_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.Process(context.Background(), confirmation(appID), entities.JSONDocument{})
	require.Error(t, err)
	assert.True(t, domainerrors.IsStateTransition(err))
	assert.Empty(t, publisher.messages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAppliesConfirmation(t *testing.T) {
	svc, mock, publisher := newTestService(t)
	appID := uuid.New()

	mock.ExpectQuery(`INSERT INTO webhook_events`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`SELECT .+ FROM applications`).
		WillReturnRows(applicationRows(appID, "UNDER_REVIEW"))

	mock.ExpectBegin()
	mock.ExpectExec(`set_config`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`UPDATE applications`).
		WillReturnRows(applicationRows(appID, "APPROVED"))
	mock.ExpectCommit()

	mock.ExpectExec(`UPDATE webhook_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	outcome, err := svc.Process(context.Background(), confirmation(appID), entities.JSONDocument{"provider_reference": "r1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, entities.EventTypeApplicationUpdate, publisher.messages[0].Type)
	data := publisher.messages[0].Data.(entities.ApplicationUpdateData)
	assert.Equal(t, appID, data.ID)
	assert.Equal(t, entities.StatusApproved, data.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
