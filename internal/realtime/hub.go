// Package realtime fans application update events out to subscribed
// WebSocket sessions. Delivery is best-effort: a session that cannot keep
// up is dropped, never waited on.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/domain/entities"
	"github.com/global-credit/credit_core/pkg/metrics"
)

// Hub manages WebSocket sessions and broadcasts realtime messages
type Hub struct {
	sessions   map[*Session]bool
	broadcast  chan entities.RealtimeMessage
	register   chan *Session
	unregister chan *Session
	done       chan struct{}
	stopOnce   sync.Once
	logger     *zap.Logger
}

// NewHub creates a new hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions:   make(map[*Session]bool),
		broadcast:  make(chan entities.RealtimeMessage, 256),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's event loop. Should be called as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case session := <-h.register:
			h.sessions[session] = true
			metrics.WebsocketSessionsGauge.Set(float64(len(h.sessions)))
			h.logger.Debug("WebSocket session connected", zap.Int("sessions", len(h.sessions)))

		case session := <-h.unregister:
			if _, ok := h.sessions[session]; ok {
				delete(h.sessions, session)
				close(session.send)
			}
			metrics.WebsocketSessionsGauge.Set(float64(len(h.sessions)))
			h.logger.Debug("WebSocket session disconnected", zap.Int("sessions", len(h.sessions)))

		case msg := <-h.broadcast:
			h.dispatch(msg)
		}
	}
}

// dispatch routes one message to every interested session
func (h *Hub) dispatch(msg entities.RealtimeMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("Failed to marshal realtime message", zap.Error(err))
		return
	}

	applicationID, scoped := updateApplicationID(msg)

	var slow []*Session
	for session := range h.sessions {
		if scoped && !session.wants(applicationID) {
			continue
		}
		select {
		case session.send <- data:
		default:
			slow = append(slow, session)
		}
	}

	for _, s := range slow {
		delete(h.sessions, s)
		close(s.send)
	}
	if len(slow) > 0 {
		metrics.WebsocketSessionsGauge.Set(float64(len(h.sessions)))
		h.logger.Warn("Dropped slow WebSocket sessions", zap.Int("count", len(slow)))
	}
}

// Stop signals the hub's event loop to exit
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast hands a message to the hub without blocking the caller
func (h *Hub) Broadcast(msg entities.RealtimeMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("WebSocket broadcast channel full, dropping event")
	}
}

// updateApplicationID extracts the application id from an update message;
// other message types are global and reach every session.
func updateApplicationID(msg entities.RealtimeMessage) (uuid.UUID, bool) {
	if msg.Type != entities.EventTypeApplicationUpdate {
		return uuid.Nil, false
	}
	switch data := msg.Data.(type) {
	case entities.ApplicationUpdateData:
		return data.ID, true
	case map[string]interface{}:
		// Messages that crossed the pub/sub wire arrive as generic JSON
		if raw, ok := data["id"].(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				return id, true
			}
		}
	}
	return uuid.Nil, false
}
