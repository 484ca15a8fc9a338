package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker backed by Redis leases, for running several
// replicas against one graph store. A lease expires after TTL so a crashed
// holder cannot block a key forever.
type RedisLocker struct {
	client         *redis.Client
	prefix         string
	ttl            time.Duration
	acquireTimeout time.Duration
	logger         *zap.Logger
}

// NewRedisLocker creates a RedisLocker. Keys are namespaced with prefix.
func NewRedisLocker(client *redis.Client, prefix string, ttl, acquireTimeout time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client:         client,
		prefix:         prefix,
		ttl:            ttl,
		acquireTimeout: acquireTimeout,
		logger:         logger.Named("locking"),
	}
}

var _ Locker = (*RedisLocker)(nil)

const (
	minPoll = 5 * time.Millisecond
	maxPoll = 100 * time.Millisecond
)

// Lock polls SET NX with exponential backoff until the lease is won,
// acquireTimeout passes, or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.acquireTimeout)
	defer cancel()

	poll := minPoll
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%s: %w", key, ErrLockTimeout)
			}
			return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
		}
		if ok {
			return l.unlockFunc(redisKey, token), nil
		}

		select {
		case <-time.After(poll):
			poll *= 2
			if poll > maxPoll {
				poll = maxPoll
			}
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%s: %w", key, ErrLockTimeout)
			}
			return nil, ctx.Err()
		}
	}
}

func (l *RedisLocker) unlockFunc(redisKey, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("Failed to release lease; it will expire",
				zap.String("key", redisKey),
				zap.Error(err))
		}
	}
}
