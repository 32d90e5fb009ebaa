// Package lock implements short-lived exclusive leases on Redis, used to
// guarantee that at most one worker advances a given application at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotAcquired is returned when the lease is held elsewhere
var ErrNotAcquired = errors.New("lock not acquired")

// DefaultTTL is longer than the worst-case task duration so a dead holder
// cannot deadlock an application forever.
const DefaultTTL = 5 * time.Minute

// releaseScript deletes the key only if the fencing token still matches,
// so an expired lease re-acquired by another worker is never released by
// the original holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// Lease is a held lock with its fencing token
type Lease struct {
	Key   string
	Token string
	TTL   time.Duration
}

// Service acquires and releases application leases
type Service struct {
	client  *redis.Client
	release *redis.Script
	logger  *zap.Logger
}

// NewService creates a lock service
func NewService(client *redis.Client, logger *zap.Logger) *Service {
	return &Service{
		client:  client,
		release: redis.NewScript(releaseScript),
		logger:  logger,
	}
}

func lockKey(applicationID uuid.UUID) string {
	return fmt.Sprintf("lock:application:%s", applicationID)
}

// Acquire attempts to take the lease for an application. It returns
// ErrNotAcquired immediately if another holder has it; callers that can
// wait should use AcquireWithBudget.
func (s *Service) Acquire(ctx context.Context, applicationID uuid.UUID, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	key := lockKey(applicationID)
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return &Lease{Key: key, Token: token, TTL: ttl}, nil
}

// AcquireWithBudget retries acquisition until the budget elapses. The
// budget is deliberately short; a held lock means another worker owns the
// application and the caller should abandon the task.
func (s *Service) AcquireWithBudget(ctx context.Context, applicationID uuid.UUID, ttl, budget time.Duration) (*Lease, error) {
	deadline := time.Now().Add(budget)
	for {
		lease, err := s.Acquire(ctx, applicationID, ttl)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Release releases a lease. It is idempotent and never releases a lease
// whose token no longer matches.
func (s *Service) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}

	deleted, err := s.release.Run(ctx, s.client, []string{lease.Key}, lease.Token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lease.Key, err)
	}
	if deleted == 0 {
		s.logger.Debug("Lease already expired or taken over",
			zap.String("key", lease.Key))
	}
	return nil
}
