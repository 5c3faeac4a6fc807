package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another process holds the single-writer lease.
var ErrLocked = errors.New("single-writer lease is held by another process")

// Lease guards every read-modify-write cycle over the queue and publish state.
type Lease interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// WithLease runs fn while holding lease.
func WithLease(ctx context.Context, lease Lease, fn func() error) error {
	if lease == nil {
		return fn()
	}
	if err := lease.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		// A failed release must not mask the outcome of fn; the lease also
		// expires on its own (redis) or with the process (flock).
		_ = lease.Release(context.WithoutCancel(ctx))
	}()
	return fn()
}

// FileLease is an advisory flock on a lock file next to the durable state.
type FileLease struct {
	path  string
	wait  time.Duration
	retry time.Duration
	lock  *flock.Flock
}

func NewFileLease(path string, wait time.Duration) *FileLease {
	return &FileLease{
		path:  path,
		wait:  wait,
		retry: 250 * time.Millisecond,
		lock:  flock.New(path),
	}
}

func (l *FileLease) Acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	if l.wait <= 0 {
		ok, err := l.lock.TryLock()
		if err != nil {
			return fmt.Errorf("lock %s: %w", l.path, err)
		}
		if !ok {
			return ErrLocked
		}
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	ok, err := l.lock.TryLockContext(waitCtx, l.retry)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (l *FileLease) Release(context.Context) error {
	return l.lock.Unlock()
}

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisLease is a SET NX lease with a TTL; it lets hosts that do not share a
// filesystem serialize runs.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
	script *redis.Script
}

func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	return &RedisLease{
		client: client,
		key:    key,
		ttl:    ttl,
		script: redis.NewScript(releaseScript),
	}
}

// NewRedisLeaseFromURL parses a redis:// URL and pings the server.
func NewRedisLeaseFromURL(ctx context.Context, rawURL, key string, ttl time.Duration) (*RedisLease, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisLease(client, key, ttl), nil
}

func (l *RedisLease) Acquire(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire redis lease %s: %w", l.key, err)
	}
	if !ok {
		return ErrLocked
	}
	l.token = token
	return nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if err := l.script.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release redis lease %s: %w", l.key, err)
	}
	return nil
}

func (l *RedisLease) Close() error {
	return l.client.Close()
}
