// Package pubsub broadcasts application update events across processes.
// Delivery is best-effort and advisory; publish failures never block a
// state transition.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/domain/entities"
	"github.com/global-credit/credit_core/pkg/metrics"
)

// Channel is the pub/sub channel carrying application updates
const Channel = "application_updates"

// Publisher publishes realtime messages
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewPublisher creates a publisher
func NewPublisher(client *redis.Client, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Publish sends a message on the update channel. Failures are logged and
// counted, never returned to the hot path.
func (p *Publisher) Publish(ctx context.Context, msg entities.RealtimeMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("Failed to marshal realtime message", zap.Error(err))
		metrics.BroadcastFailuresCounter.Inc()
		return
	}

	if err := p.client.Publish(ctx, Channel, data).Err(); err != nil {
		p.logger.Warn("Failed to publish realtime message", zap.Error(err))
		metrics.BroadcastFailuresCounter.Inc()
	}
}

// Subscriber consumes the update channel and hands messages to a sink
type Subscriber struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSubscriber creates a subscriber
func NewSubscriber(client *redis.Client, logger *zap.Logger) *Subscriber {
	return &Subscriber{client: client, logger: logger}
}

// Run subscribes and forwards every message to sink until ctx is done
func (s *Subscriber) Run(ctx context.Context, sink func(entities.RealtimeMessage)) error {
	sub := s.client.Subscribe(ctx, Channel)
	defer sub.Close()

	// Fail fast if the subscription could not be established
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg entities.RealtimeMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				s.logger.Warn("Dropping malformed realtime message", zap.Error(err))
				continue
			}
			sink(msg)
		}
	}
}
