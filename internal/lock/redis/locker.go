// Package redis implements the run lock on Redis so overlapping schedulers on
// different hosts skip instead of racing.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/contestlab/contest-pipeline/internal/lock"
)

const keyPrefix = "contestpipe:lock:"

// releaseScript deletes the key only if it still carries our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *goredis.Cmd
}

// Locker takes SET NX locks with a TTL.
type Locker struct {
	client client
	ttl    time.Duration
}

// Connect parses url, pings the server, and returns the client with a Locker.
func Connect(ctx context.Context, url string, ttl time.Duration) (*Locker, *goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, ttl), rdb, nil
}

// New wraps an existing client. A non-positive ttl falls back to one hour.
func New(c client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Locker{client: c, ttl: ttl}
}

// Acquire sets the lock key or returns lock.ErrLocked if it already exists.
func (l *Locker) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	key := keyPrefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, lock.ErrLocked
	}
	return func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}, nil
}
