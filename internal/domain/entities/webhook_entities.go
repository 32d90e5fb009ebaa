package entities

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventStatus represents the processing status of a webhook event
type WebhookEventStatus string

const (
	WebhookEventProcessing WebhookEventStatus = "processing"
	WebhookEventProcessed  WebhookEventStatus = "processed"
	WebhookEventFailed     WebhookEventStatus = "failed"
)

// WebhookEvent records one provider confirmation delivery. The idempotency
// key is derived from the provider's reference; the unique constraint on it
// is what makes replays harmless.
type WebhookEvent struct {
	ID             uuid.UUID          `json:"id" db:"id"`
	IdempotencyKey string             `json:"idempotency_key" db:"idempotency_key"`
	ApplicationID  uuid.UUID          `json:"application_id" db:"application_id"`
	Payload        JSONDocument       `json:"payload" db:"payload"`
	Status         WebhookEventStatus `json:"status" db:"status"`
	ErrorMessage   *string            `json:"error_message,omitempty" db:"error_message"`
	ProcessedAt    *time.Time         `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
}

// BankConfirmationWebhook is the provider confirmation payload
type BankConfirmationWebhook struct {
	ProviderReference string                 `json:"provider_reference" validate:"required"`
	Provider          string                 `json:"provider"`
	ApplicationID     string                 `json:"application_id" validate:"required"`
	Outcome           string                 `json:"outcome" validate:"required"`
	CreditScore       *int                   `json:"credit_score,omitempty"`
	BankingData       map[string]interface{} `json:"banking_data,omitempty"`
}
