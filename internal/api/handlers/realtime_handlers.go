package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/global-credit/credit_core/internal/realtime"
	"github.com/global-credit/credit_core/pkg/logger"
)

// RealtimeHandlers upgrades clients onto the update hub
type RealtimeHandlers struct {
	hub    *realtime.Hub
	logger *logger.Logger
}

// NewRealtimeHandlers creates a new RealtimeHandlers instance
func NewRealtimeHandlers(hub *realtime.Hub, logger *logger.Logger) *RealtimeHandlers {
	return &RealtimeHandlers{hub: hub, logger: logger}
}

// Connect handles GET /api/v1/ws
func (h *RealtimeHandlers) Connect(c *gin.Context) {
	if err := h.hub.ServeWS(c.Writer, c.Request); err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		// The upgrader already wrote the HTTP error response
	}
}
