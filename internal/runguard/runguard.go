// Package runguard serializes sync passes, either within one process or
// across every instance sharing a Redis.
package runguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/dvloznov/budget-sync/internal/logger"
)

// ErrPassInProgress is returned when another instance holds the pass lock.
var ErrPassInProgress = errors.New("sync pass already in progress")

// DefaultExpiry bounds how long a crashed holder can block other instances.
const DefaultExpiry = 30 * time.Minute

// lockName is the Redis key shared by every pass, whatever its destinations.
const lockName = "budget-sync:pass"

// Guard runs fn so that no two passes overlap. The key names the work a pass
// does; callers asking for the same work pass equal keys.
type Guard interface {
	Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error)
}

// LocalGuard serializes passes within the process. A caller arriving while a
// pass with the same key is in flight waits for it and receives the same
// result. A pass with a different key runs after the current one ends.
type LocalGuard struct {
	group singleflight.Group
	mu    sync.Mutex
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{}
}

func (g *LocalGuard) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	log := logger.FromContext(ctx)
	v, err, shared := g.group.Do(key, func() (any, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		return fn(ctx)
	})
	if shared {
		log.Debug().Str("key", key).Msg("Joined sync pass in flight")
	}
	return v, err
}

// RedisGuard holds a single Redis lock for the duration of any pass. A caller
// that finds the lock taken fails fast with ErrPassInProgress.
type RedisGuard struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewRedisGuard creates a guard over client. A non-positive expiry uses DefaultExpiry.
func NewRedisGuard(client goredislib.UniversalClient, expiry time.Duration) *RedisGuard {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &RedisGuard{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
	}
}

func (g *RedisGuard) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	log := logger.FromContext(ctx)

	mutex := g.rs.NewMutex(
		lockName,
		redsync.WithExpiry(g.expiry),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if contention(err) {
			log.Info().Str("key", key).Msg("Sync pass lock held elsewhere")
			return nil, ErrPassInProgress
		}
		return nil, fmt.Errorf("RedisGuard.Do: acquiring lock: %w", err)
	}
	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil || !ok {
			log.Warn().Err(err).Str("key", key).Msg("Failed to release sync pass lock")
		}
	}()

	return fn(ctx)
}

func contention(err error) bool {
	var taken *redsync.ErrTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock already taken") || strings.Contains(msg, "failed to acquire lock")
}
