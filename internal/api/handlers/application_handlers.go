package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/global-credit/credit_core/internal/domain/entities"
	"github.com/global-credit/credit_core/internal/domain/services/application"
	"github.com/global-credit/credit_core/pkg/logger"
)

// ApplicationHandlers serves the credit application intake and read surface
type ApplicationHandlers struct {
	service   *application.Service
	validator *validator.Validate
	logger    *logger.Logger
}

// NewApplicationHandlers creates a new ApplicationHandlers instance
func NewApplicationHandlers(service *application.Service, logger *logger.Logger) *ApplicationHandlers {
	return &ApplicationHandlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Create handles POST /api/v1/applications
func (h *ApplicationHandlers) Create(c *gin.Context) {
	var req entities.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusUnprocessableEntity, "INVALID_SCHEMA", "request body does not match the expected schema",
			map[string]interface{}{"error": err.Error()})
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		respondError(c, http.StatusUnprocessableEntity, "INVALID_SCHEMA", "request body failed validation",
			map[string]interface{}{"error": err.Error()})
		return
	}

	resp, created, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if !created {
		h.logger.Info("Idempotent application replay", "application_id", resp.ID)
	}
	c.JSON(http.StatusCreated, resp)
}

// Get handles GET /api/v1/applications/:id
func (h *ApplicationHandlers) Get(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AuditTrail handles GET /api/v1/applications/:id/audit
func (h *ApplicationHandlers) AuditTrail(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	logs, err := h.service.AuditTrail(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"application_id": id, "audit_logs": logs})
}
