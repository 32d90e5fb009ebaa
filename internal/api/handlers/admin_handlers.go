package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/global-credit/credit_core/internal/domain/entities"
	"github.com/global-credit/credit_core/internal/domain/services/application"
	"github.com/global-credit/credit_core/internal/infrastructure/breaker"
	"github.com/global-credit/credit_core/internal/infrastructure/repositories"
	"github.com/global-credit/credit_core/pkg/logger"
)

// AdminHandlers exposes operational controls: manual cancellation, breaker
// overrides and the dead-letter queue.
type AdminHandlers struct {
	appService *application.Service
	breakers   *breaker.Registry
	failedRepo *repositories.FailedJobRepository
	jobRepo    *repositories.PendingJobRepository
	logger     *logger.Logger
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(
	appService *application.Service,
	breakers *breaker.Registry,
	failedRepo *repositories.FailedJobRepository,
	jobRepo *repositories.PendingJobRepository,
	logger *logger.Logger,
) *AdminHandlers {
	return &AdminHandlers{
		appService: appService,
		breakers:   breakers,
		failedRepo: failedRepo,
		jobRepo:    jobRepo,
		logger:     logger,
	}
}

type cancelRequest struct {
	Reason    string `json:"reason"`
	ChangedBy string `json:"changed_by"`
}

// CancelApplication handles POST /api/v1/admin/applications/:id/cancel
func (h *AdminHandlers) CancelApplication(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid cancel request", nil)
		return
	}
	if req.ChangedBy == "" {
		req.ChangedBy = "admin"
	}
	if req.Reason == "" {
		req.Reason = "manual cancellation"
	}

	resp, err := h.appService.Cancel(c.Request.Context(), id, req.ChangedBy, req.Reason)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// BreakerSnapshot handles GET /api/v1/admin/breakers
func (h *AdminHandlers) BreakerSnapshot(c *gin.Context) {
	out := make([]gin.H, 0)
	for _, key := range h.breakers.Keys() {
		out = append(out, gin.H{
			"country":  key.Country,
			"provider": key.Provider,
			"state":    h.breakers.Snapshot(key),
		})
	}
	c.JSON(http.StatusOK, gin.H{"breakers": out})
}

type breakerRequest struct {
	Country  string `json:"country" binding:"required"`
	Provider string `json:"provider" binding:"required"`
}

// ForceOpenBreaker handles POST /api/v1/admin/breakers/open
func (h *AdminHandlers) ForceOpenBreaker(c *gin.Context) {
	var req breakerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "country and provider are required", nil)
		return
	}
	key := breaker.Key{Country: entities.CountryCode(req.Country), Provider: req.Provider}
	h.breakers.ForceOpen(key)
	c.JSON(http.StatusOK, gin.H{"state": h.breakers.Snapshot(key)})
}

// ForceCloseBreaker handles POST /api/v1/admin/breakers/close
func (h *AdminHandlers) ForceCloseBreaker(c *gin.Context) {
	var req breakerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "country and provider are required", nil)
		return
	}
	key := breaker.Key{Country: entities.CountryCode(req.Country), Provider: req.Provider}
	h.breakers.ForceClose(key)
	c.JSON(http.StatusOK, gin.H{"state": h.breakers.Snapshot(key)})
}

// ListFailedJobs handles GET /api/v1/admin/failed-jobs
func (h *AdminHandlers) ListFailedJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	jobs, err := h.failedRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"failed_jobs": jobs})
}

// RetryFailedJob handles POST /api/v1/admin/failed-jobs/:job_id/retry
func (h *AdminHandlers) RetryFailedJob(c *gin.Context) {
	jobID, ok := parseUUIDParam(c, "job_id")
	if !ok {
		return
	}

	failed, err := h.failedRepo.GetByJobID(c.Request.Context(), jobID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	pending, err := h.jobRepo.CreateRetry(c.Request.Context(), failed)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if err := h.failedRepo.UpdateStatus(c.Request.Context(), failed.ID, entities.FailedJobReprocessed); err != nil {
		respondDomainError(c, err)
		return
	}

	h.logger.Info("Failed job manually re-enqueued", "job_id", jobID, "pending_job_id", pending.ID)
	c.JSON(http.StatusOK, gin.H{"pending_job_id": pending.ID})
}
