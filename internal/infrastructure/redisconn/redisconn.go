// Package redisconn dials the Redis instance backing the pipeline's
// coordination primitives. Nothing in this service uses Redis as a cache:
// the client handed out here is shared by exactly three owners, each with
// its own keyspace —
//
//	lock:application:<id>   per-application leases (lock package)
//	credit_core:tasks       the work queue list (queue package)
//	application_updates     the realtime pub/sub channel (pubsub package)
//
// Those packages own their key schemas; this one only owns the connection
// and its liveness.
package redisconn

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/infrastructure/config"
)

const dialTimeout = 5 * time.Second

// Connect dials Redis and verifies it answers. The queue bridge, the
// worker pool and the lock service all depend on this connection, so an
// unreachable broker fails boot the same way an unreachable database does.
func Connect(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("coordination broker unreachable at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info("Connected to coordination broker",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Int("db", cfg.DB))
	return client, nil
}

// HealthCheck reports whether the broker still answers
func HealthCheck(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("coordination broker health check failed: %w", err)
	}
	return nil
}
