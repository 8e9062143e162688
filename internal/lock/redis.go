package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/agenthands/lineage/internal/logger"
)

const (
	keyPrefix    = "lineage:lock:"
	pollInterval = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another process is never released by us.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// refreshScript extends the expiry only while the key still holds our token.
var refreshScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker locks keys across processes with SET NX PX. A lock expires
// after ttl if its holder dies; a live holder keeps extending it every ttl/3.
type RedisLocker struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewRedisLocker(ctx context.Context, addr, password string, db int, ttl time.Duration, log *logger.Logger) (*RedisLocker, error) {
	if log == nil {
		log = logger.Nop()
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisLocker{rdb: rdb, ttl: ttl, log: log.With("service", "RedisLocker")}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	rkey := keyPrefix + key

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.keepAlive(rkey, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			// Release even when the caller's context is already cancelled.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.rdb, []string{rkey}, token).Err(); err != nil {
				l.log.Warn("failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}

// keepAlive extends the lock while it is held, so long interactive
// decisions cannot outlive the ttl.
func (l *RedisLocker) keepAlive(rkey, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	every := l.ttl / 3
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, err := refreshScript.Run(ctx, l.rdb, []string{rkey}, token, l.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			l.log.Warn("failed to extend lock", "key", rkey, "error", err)
		case n == 0:
			l.log.Error("lock lost before release", "key", rkey)
			return
		}
	}
}

func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}
