package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/pkg/crypto"
	"github.com/global-credit/credit_core/pkg/logger"
)

const testWebhookSecret = "webhook-secret-webhook-secret-32"

func newWebhookTestHandler(secret string) (*WebhookHandlers, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	h := &WebhookHandlers{
		validator:     validator.New(),
		webhookSecret: secret,
		logger:        logger.NewLogger(zap.NewNop()),
	}
	router := gin.New()
	router.POST("/webhook", h.BankConfirmation)
	return h, router
}

func postWebhook(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	_, router := newWebhookTestHandler(testWebhookSecret)

	w := postWebhook(router, []byte(`{"provider_reference":"r1"}`), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	_, router := newWebhookTestHandler(testWebhookSecret)

	w := postWebhook(router, []byte(`{"provider_reference":"r1"}`), "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsSignatureForDifferentBody(t *testing.T) {
	_, router := newWebhookTestHandler(testWebhookSecret)

	signature := crypto.SignHMAC(testWebhookSecret, []byte(`{"provider_reference":"other"}`))
	w := postWebhook(router, []byte(`{"provider_reference":"r1"}`), signature)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookFailsClosedWithoutSecret(t *testing.T) {
	_, router := newWebhookTestHandler("")

	body := []byte(`{"provider_reference":"r1"}`)
	w := postWebhook(router, body, crypto.SignHMAC("", body))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsOversizePayload(t *testing.T) {
	_, router := newWebhookTestHandler(testWebhookSecret)

	body := []byte(`{"pad":"` + strings.Repeat("x", maxWebhookBody) + `"}`)
	w := postWebhook(router, body, crypto.SignHMAC(testWebhookSecret, body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	_, router := newWebhookTestHandler(testWebhookSecret)

	body := []byte(`{not json`)
	w := postWebhook(router, body, crypto.SignHMAC(testWebhookSecret, body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectsMissingRequiredFields(t *testing.T) {
	_, router := newWebhookTestHandler(testWebhookSecret)

	body := []byte(`{"provider_reference":"r1"}`)
	w := postWebhook(router, body, crypto.SignHMAC(testWebhookSecret, body))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
