package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/domain/entities"
)

const (
	// idleTimeout closes sessions without traffic; clients keep the
	// connection alive with {"action":"ping"} roughly every 20s
	idleTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Session is one connected WebSocket client. A session with no explicit
// subscriptions receives the full broadcast stream; subscribing narrows it
// to the chosen applications plus global events.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[uuid.UUID]bool

	logger *zap.Logger
}

// ServeWS upgrades an HTTP request into a hub session
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	session := &Session{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		subscriptions: make(map[uuid.UUID]bool),
		logger:        h.logger,
	}

	h.register <- session

	go session.writeLoop()
	go session.readLoop()

	session.enqueue(entities.RealtimeMessage{
		Type: entities.EventTypeWelcome,
		Data: map[string]interface{}{"message": "connected to application updates"},
	})

	return nil
}

// wants reports whether this session should receive updates for an
// application
func (s *Session) wants(applicationID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.subscriptions) == 0 {
		return true
	}
	return s.subscriptions[applicationID]
}

// enqueue pushes a message onto the session's send buffer, best-effort
func (s *Session) enqueue(msg entities.RealtimeMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	default:
	}
}

func (s *Session) readLoop() {
	defer func() {
		s.hub.unregister <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(4096)
	s.conn.SetReadDeadline(time.Now().Add(idleTimeout))

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(idleTimeout))

		var action entities.ClientAction
		if err := json.Unmarshal(data, &action); err != nil {
			s.enqueue(entities.RealtimeMessage{
				Type: entities.EventTypeError,
				Data: map[string]interface{}{"message": "malformed action"},
			})
			continue
		}
		s.handleAction(action)
	}
}

func (s *Session) handleAction(action entities.ClientAction) {
	switch action.Action {
	case "ping":
		s.enqueue(entities.RealtimeMessage{Type: entities.EventTypePong})

	case "subscribe":
		id, err := uuid.Parse(action.ApplicationID)
		if err != nil {
			s.enqueue(entities.RealtimeMessage{
				Type: entities.EventTypeError,
				Data: map[string]interface{}{"message": "invalid application_id"},
			})
			return
		}
		s.mu.Lock()
		s.subscriptions[id] = true
		s.mu.Unlock()
		s.enqueue(entities.RealtimeMessage{
			Type: entities.EventTypeSubscribed,
			Data: map[string]interface{}{"application_id": id.String()},
		})

	case "unsubscribe":
		id, err := uuid.Parse(action.ApplicationID)
		if err != nil {
			return
		}
		s.mu.Lock()
		delete(s.subscriptions, id)
		s.mu.Unlock()

	default:
		s.enqueue(entities.RealtimeMessage{
			Type: entities.EventTypeError,
			Data: map[string]interface{}{"message": "unknown action " + action.Action},
		})
	}
}

func (s *Session) writeLoop() {
	defer s.conn.Close()

	for data := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	// Hub closed the channel: say goodbye
	s.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
