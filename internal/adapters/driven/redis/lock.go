package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

const lockPrefix = "voxstitch:lock:"

// Lock implements DistributedLock with SET NX and a TTL. The stored value
// is the instance ID joined with the caller's owner token, so only that
// acquisition can release or extend the lock.
type Lock struct {
	client   redis.UniversalClient
	instance string
}

// NewLock creates a lock adapter tagged with a fresh instance ID.
func NewLock(client redis.UniversalClient) *Lock {
	hostname, _ := os.Hostname()
	return &Lock{
		client:   client,
		instance: fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString()),
	}
}

func (l *Lock) value(owner string) string {
	return l.instance + "/" + owner
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Acquire claims name for owner. It never blocks: a held lock yields false.
func (l *Lock) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockPrefix+name, l.value(owner), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// compareAndDelete removes KEYS[1] only while ARGV[1] still owns it
var compareAndDelete = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// compareAndExpire refreshes the TTL of KEYS[1] only while ARGV[1] still owns it
var compareAndExpire = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// Release drops the lock if owner holds it.
// Releasing an expired or foreign lock is not an error.
func (l *Lock) Release(ctx context.Context, name, owner string) error {
	err := compareAndDelete.Run(ctx, l.client, []string{lockPrefix + name}, l.value(owner)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// Extend refreshes the TTL of a lock owner holds.
func (l *Lock) Extend(ctx context.Context, name, owner string, ttl time.Duration) error {
	n, err := compareAndExpire.Run(ctx, l.client, []string{lockPrefix + name}, l.value(owner), ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: lock %s not held by %s", domain.ErrNotFound, name, owner)
	}
	return nil
}

// Holder returns the stored value of a lock, or "" when it is free.
func (l *Lock) Holder(ctx context.Context, name string) (string, error) {
	owner, err := l.client.Get(ctx, lockPrefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get lock %s: %w", name, err)
	}
	return owner, nil
}

func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Instance identifies this process in lock values.
func (l *Lock) Instance() string {
	return l.instance
}
