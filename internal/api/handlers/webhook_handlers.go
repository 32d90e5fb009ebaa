package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
	"github.com/global-credit/credit_core/internal/domain/services/webhook"
	"github.com/global-credit/credit_core/pkg/crypto"
	"github.com/global-credit/credit_core/pkg/logger"
)

// maxWebhookBody caps provider payloads at 1 MiB
const maxWebhookBody = 1 << 20

// signatureHeader carries the lowercase-hex HMAC-SHA256 of the raw body
const signatureHeader = "X-Webhook-Signature"

// WebhookHandlers handles provider confirmation intake
type WebhookHandlers struct {
	service       *webhook.Service
	validator     *validator.Validate
	webhookSecret string
	logger        *logger.Logger
}

// NewWebhookHandlers creates a new WebhookHandlers instance
func NewWebhookHandlers(service *webhook.Service, webhookSecret string, logger *logger.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		service:       service,
		validator:     validator.New(),
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// BankConfirmation handles POST /api/v1/webhooks/bank-confirmation
func (h *WebhookHandlers) BankConfirmation(c *gin.Context) {
	if c.Request.ContentLength > maxWebhookBody {
		respondError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "payload exceeds 1 MiB", nil)
		return
	}

	rawBody, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		// MaxBytesReader fires when Content-Length lied or was absent
		respondError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "payload exceeds 1 MiB", nil)
		return
	}

	if h.webhookSecret == "" {
		// Misconfiguration fails closed, never open
		h.logger.Error("Webhook secret not configured, rejecting delivery")
		respondUnauthorized(c, "webhook verification not configured")
		return
	}

	signature := c.GetHeader(signatureHeader)
	if signature == "" || !crypto.VerifyHMAC(h.webhookSecret, rawBody, signature) {
		h.logger.Warn("Webhook signature verification failed", zap.String("remote", c.ClientIP()))
		respondUnauthorized(c, "invalid webhook signature")
		return
	}

	var payload entities.BankConfirmationWebhook
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		respondBadRequest(c, "invalid webhook payload", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := h.validator.Struct(&payload); err != nil {
		respondError(c, http.StatusUnprocessableEntity, "INVALID_SCHEMA", "webhook payload failed validation",
			map[string]interface{}{"error": err.Error()})
		return
	}

	var rawDoc entities.JSONDocument
	if err := json.Unmarshal(rawBody, &rawDoc); err != nil {
		rawDoc = entities.JSONDocument{}
	}

	outcome, err := h.service.Process(c.Request.Context(), &payload, rawDoc)
	if err != nil {
		switch {
		case domainerrors.IsStateTransition(err):
			respondError(c, http.StatusUnprocessableEntity, "INVALID_TRANSITION",
				"application cannot transition to the requested status", nil)
		case domainerrors.KindOf(err) == domainerrors.KindInvalidApplicationID,
			domainerrors.IsValidation(err):
			respondError(c, http.StatusUnprocessableEntity, "INVALID_SCHEMA", err.Error(), nil)
		case domainerrors.IsNotFound(err):
			respondError(c, http.StatusUnprocessableEntity, "INVALID_TRANSITION",
				"application not found", nil)
		default:
			h.logger.Error("Failed to process webhook",
				"error", err,
				"provider_reference", payload.ProviderReference,
			)
			respondInternalError(c, "failed to process webhook")
		}
		return
	}

	switch outcome {
	case webhook.OutcomeDuplicate:
		c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	}
}
