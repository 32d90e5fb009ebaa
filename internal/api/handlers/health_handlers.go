package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/global-credit/credit_core/internal/infrastructure/database"
	"github.com/global-credit/credit_core/internal/infrastructure/redisconn"
)

// HealthHandlers serves liveness and readiness probes
type HealthHandlers struct {
	db    *sqlx.DB
	redis *redis.Client
}

// NewHealthHandlers creates a new HealthHandlers instance
func NewHealthHandlers(db *sqlx.DB, redis *redis.Client) *HealthHandlers {
	return &HealthHandlers{db: db, redis: redis}
}

// Health handles GET /health
func (h *HealthHandlers) Health(c *gin.Context) {
	checks := gin.H{"database": "ok", "redis": "ok"}
	healthy := true

	if err := database.HealthCheck(h.db); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := redisconn.HealthCheck(c.Request.Context(), h.redis); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
}
