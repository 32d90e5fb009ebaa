package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/domain/entities"
)

func newTestSession() *Session {
	return &Session{
		send:          make(chan []byte, sendBuffer),
		subscriptions: make(map[uuid.UUID]bool),
		logger:        zap.NewNop(),
	}
}

func updateFor(id uuid.UUID) entities.RealtimeMessage {
	return entities.RealtimeMessage{
		Type: entities.EventTypeApplicationUpdate,
		Data: entities.ApplicationUpdateData{
			ID:        id,
			Status:    entities.StatusApproved,
			UpdatedAt: time.Now().UTC(),
		},
	}
}

func receive(t *testing.T, s *Session) entities.RealtimeMessage {
	t.Helper()
	select {
	case data := <-s.send:
		var msg entities.RealtimeMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	default:
		t.Fatal("expected a message")
		return entities.RealtimeMessage{}
	}
}

func assertEmpty(t *testing.T, s *Session) {
	t.Helper()
	select {
	case data := <-s.send:
		t.Fatalf("unexpected message: %s", data)
	default:
	}
}

func TestDispatchReachesUnsubscribedSessions(t *testing.T) {
	hub := NewHub(zap.NewNop())
	session := newTestSession()
	hub.sessions[session] = true

	hub.dispatch(updateFor(uuid.New()))

	msg := receive(t, session)
	assert.Equal(t, entities.EventTypeApplicationUpdate, msg.Type)
}

func TestDispatchFiltersBySubscription(t *testing.T) {
	hub := NewHub(zap.NewNop())
	watched := uuid.New()
	other := uuid.New()

	subscriber := newTestSession()
	subscriber.subscriptions[watched] = true
	firehose := newTestSession()

	hub.sessions[subscriber] = true
	hub.sessions[firehose] = true

	hub.dispatch(updateFor(other))
	assertEmpty(t, subscriber)
	receive(t, firehose)

	hub.dispatch(updateFor(watched))
	receive(t, subscriber)
	receive(t, firehose)
}

func TestDispatchGlobalEventsReachEveryone(t *testing.T) {
	hub := NewHub(zap.NewNop())
	subscriber := newTestSession()
	subscriber.subscriptions[uuid.New()] = true
	hub.sessions[subscriber] = true

	hub.dispatch(entities.RealtimeMessage{
		Type: entities.EventTypeWelcome,
		Data: map[string]interface{}{"message": "hello"},
	})

	msg := receive(t, subscriber)
	assert.Equal(t, entities.EventTypeWelcome, msg.Type)
}

func TestDispatchFiltersWireFormatMessages(t *testing.T) {
	// Messages from the pub/sub channel arrive as generic JSON maps
	hub := NewHub(zap.NewNop())
	watched := uuid.New()

	subscriber := newTestSession()
	subscriber.subscriptions[watched] = true
	hub.sessions[subscriber] = true

	hub.dispatch(entities.RealtimeMessage{
		Type: entities.EventTypeApplicationUpdate,
		Data: map[string]interface{}{"id": watched.String(), "status": "APPROVED"},
	})
	receive(t, subscriber)

	hub.dispatch(entities.RealtimeMessage{
		Type: entities.EventTypeApplicationUpdate,
		Data: map[string]interface{}{"id": uuid.NewString(), "status": "APPROVED"},
	})
	assertEmpty(t, subscriber)
}

func TestDispatchEvictsSlowSessions(t *testing.T) {
	hub := NewHub(zap.NewNop())

	slow := newTestSession()
	slow.send = make(chan []byte) // unbuffered and never drained
	healthy := newTestSession()

	hub.sessions[slow] = true
	hub.sessions[healthy] = true

	hub.dispatch(updateFor(uuid.New()))

	assert.NotContains(t, hub.sessions, slow)
	assert.Contains(t, hub.sessions, healthy)
	receive(t, healthy)

	// The evicted session's channel is closed
	_, open := <-slow.send
	assert.False(t, open)
}

func TestSessionWants(t *testing.T) {
	s := newTestSession()
	id := uuid.New()

	assert.True(t, s.wants(id), "no subscriptions means the full stream")

	s.subscriptions[id] = true
	assert.True(t, s.wants(id))
	assert.False(t, s.wants(uuid.New()))
}

func TestBroadcastDoesNotBlockWhenFull(t *testing.T) {
	hub := NewHub(zap.NewNop())
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		hub.Broadcast(updateFor(uuid.New())) // must never block
	}
}
