package redisconn

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/infrastructure/config"
)

func redisConfigFor(t *testing.T, mr *miniredis.Miniredis) *config.RedisConfig {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return &config.RedisConfig{Host: mr.Host(), Port: port}
}

func TestConnectAndHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), redisConfigFor(t, mr), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	assert.NoError(t, HealthCheck(context.Background(), client))
}

func TestConnectFailsFastWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisConfigFor(t, mr)
	mr.Close()

	_, err := Connect(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err, "boot must fail when the broker is unreachable")
}

func TestHealthCheckDetectsDeadBroker(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), redisConfigFor(t, mr), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	mr.Close()
	assert.Error(t, HealthCheck(context.Background(), client))
}
