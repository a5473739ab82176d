// Package lock provides single-flight guards for synchronization runs.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/feichai0017/slide-migrator/internal/errors"
	"github.com/feichai0017/slide-migrator/pkg/logger"
)

// Guard admits one holder at a time. Acquire returns
// apperrors.ErrRunInProgress while another holder is active. The returned
// release func is safe to call more than once.
type Guard interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LocalGuard serializes runs inside one process.
type LocalGuard struct {
	mu sync.Mutex
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{}
}

func (g *LocalGuard) Acquire(_ context.Context) (func(), error) {
	if !g.mu.TryLock() {
		return nil, apperrors.ErrRunInProgress
	}
	var once sync.Once
	return func() { once.Do(g.mu.Unlock) }, nil
}

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisGuard serializes runs across processes sharing one Redis. The key
// expires after ttl unless the holder keeps refreshing it, so a crashed
// holder never blocks later runs for long.
type RedisGuard struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisGuard(client *redis.Client, key string, ttl time.Duration, log logger.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisGuard{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: log.Named("lock").With(logger.String("key", key)),
	}
}

func (g *RedisGuard) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrRunInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go g.keepAlive(token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, g.client, []string{g.key}, token).Err(); err != nil {
				g.logger.Warn("Failed to release run lock", logger.Error(err))
			}
		})
	}, nil
}

func (g *RedisGuard) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(g.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := refreshScript.Run(ctx, g.client, []string{g.key}, token, g.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				g.logger.Warn("Failed to refresh run lock", logger.Error(err))
				continue
			}
			if n == 0 {
				g.logger.Error("Run lock lost to another holder")
				return
			}
		}
	}
}
