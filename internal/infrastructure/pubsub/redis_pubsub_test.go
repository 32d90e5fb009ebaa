package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/domain/entities"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	client := newTestClient(t)
	publisher := NewPublisher(client, zap.NewNop())
	subscriber := NewSubscriber(client, zap.NewNop())

	received := make(chan entities.RealtimeMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go subscriber.Run(ctx, func(msg entities.RealtimeMessage) {
		received <- msg
	})

	// Give the subscription a moment to establish
	time.Sleep(50 * time.Millisecond)

	appID := uuid.New()
	publisher.Publish(ctx, entities.RealtimeMessage{
		Type: entities.EventTypeApplicationUpdate,
		Data: entities.ApplicationUpdateData{
			ID:        appID,
			Status:    entities.StatusApproved,
			UpdatedAt: time.Now().UTC(),
		},
	})

	select {
	case msg := <-received:
		assert.Equal(t, entities.EventTypeApplicationUpdate, msg.Type)
		data, ok := msg.Data.(map[string]interface{})
		require.True(t, ok, "wire messages decode as generic JSON")
		assert.Equal(t, appID.String(), data["id"])
		assert.Equal(t, "APPROVED", data["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPublishFailureDoesNotPanic(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	publisher := NewPublisher(client, zap.NewNop())
	mr.Close()
	client.Close()

	// Broadcast is best-effort: a dead broker only logs
	publisher.Publish(context.Background(), entities.RealtimeMessage{
		Type: entities.EventTypeApplicationUpdate,
	})
}

func TestSubscriberStopsOnContextCancel(t *testing.T) {
	client := newTestClient(t)
	subscriber := NewSubscriber(client, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- subscriber.Run(ctx, func(entities.RealtimeMessage) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
