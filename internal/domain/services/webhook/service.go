// Package webhook processes asynchronous provider confirmations with
// idempotent, audited state transitions.
package webhook

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/internal/infrastructure/repositories"
	"github.com/global-credit/credit_core/pkg/logger"
	"github.com/global-credit/credit_core/pkg/metrics"
)

// Publisher emits best-effort realtime updates
type Publisher interface {
	Publish(ctx context.Context, msg entities.RealtimeMessage)
}

// Outcome reports how a delivery was handled
type Outcome int

const (
	OutcomeProcessed Outcome = iota
	OutcomeDuplicate
)

// Service applies provider confirmations to applications
type Service struct {
	appRepo   *repositories.ApplicationRepository
	eventRepo *repositories.WebhookEventRepository
	publisher Publisher
	logger    *logger.Logger
}

// NewService creates the webhook service
func NewService(
	appRepo *repositories.ApplicationRepository,
	eventRepo *repositories.WebhookEventRepository,
	publisher Publisher,
	logger *logger.Logger,
) *Service {
	return &Service{
		appRepo:   appRepo,
		eventRepo: eventRepo,
		publisher: publisher,
		logger:    logger,
	}
}

// Process applies one provider confirmation. The provider_reference is the
// idempotency key: a replayed delivery is acknowledged without touching
// the application.
func (s *Service) Process(ctx context.Context, webhook *entities.BankConfirmationWebhook, rawPayload entities.JSONDocument) (Outcome, error) {
	applicationID, err := uuid.Parse(webhook.ApplicationID)
	if err != nil {
		return 0, domainerrors.New(domainerrors.KindInvalidApplicationID, "application_id is not a valid UUID")
	}

	targetStatus := entities.ApplicationStatus(strings.ToUpper(strings.TrimSpace(webhook.Outcome)))
	if !targetStatus.IsValid() {
		return 0, domainerrors.ValidationError("outcome", "unknown outcome "+webhook.Outcome)
	}

	event := &entities.WebhookEvent{
		ID:             uuid.New(),
		IdempotencyKey: webhook.ProviderReference,
		ApplicationID:  applicationID,
		Payload:        rawPayload,
		Status:         entities.WebhookEventProcessing,
	}

	if err := s.eventRepo.Insert(ctx, event); err != nil {
		if domainerrors.IsIdempotencyHit(err) {
			s.logger.Info("Webhook already processed (idempotent replay)",
				"provider_reference", webhook.ProviderReference)
			metrics.WebhookEventsCounter.WithLabelValues("duplicate").Inc()
			return OutcomeDuplicate, nil
		}
		return 0, err
	}

	app, err := s.appRepo.GetByID(ctx, applicationID)
	if err != nil {
		s.markFailed(ctx, event, "application not found")
		return 0, err
	}

	if err := app.Status.ValidateTransition(targetStatus); err != nil {
		s.markFailed(ctx, event, "invalid transition")
		metrics.WebhookEventsCounter.WithLabelValues("invalid_transition").Inc()
		return 0, domainerrors.StateTransitionError(string(app.Status), string(targetStatus))
	}

	provider := webhook.Provider
	if provider == "" {
		provider = "bank"
	}

	upd := repositories.StatusUpdate{
		ChangedBy:    "webhook:" + provider,
		ChangeReason: "provider confirmation " + webhook.ProviderReference,
	}
	if webhook.BankingData != nil {
		upd.BankingData = entities.JSONDocument(webhook.BankingData)
	}

	updated, err := s.appRepo.TransitionStatus(ctx, app.ID, app.Status, targetStatus, upd)
	if err != nil {
		s.markFailed(ctx, event, err.Error())
		return 0, err
	}

	if err := s.eventRepo.MarkProcessed(ctx, event.ID); err != nil {
		// The transition committed; a bookkeeping failure must not turn a
		// processed delivery into an error response.
		s.logger.Error("Failed to mark webhook event processed", "error", err, "event_id", event.ID)
	}

	s.publisher.Publish(ctx, entities.NewApplicationUpdate(updated))
	metrics.WebhookEventsCounter.WithLabelValues("processed").Inc()

	s.logger.Info("Webhook processed",
		"provider_reference", webhook.ProviderReference,
		"application_id", applicationID,
		"new_status", targetStatus,
	)

	return OutcomeProcessed, nil
}

func (s *Service) markFailed(ctx context.Context, event *entities.WebhookEvent, reason string) {
	if err := s.eventRepo.MarkFailed(ctx, event.ID, reason); err != nil {
		s.logger.Error("Failed to mark webhook event failed", "error", err, "event_id", event.ID)
	}
}
