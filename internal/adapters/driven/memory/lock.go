// Package memory provides in-process implementations of driven ports for
// single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Ensure Lock implements DistributedLock
var _ driven.DistributedLock = (*Lock)(nil)

// Lock is a DistributedLock that only coordinates goroutines of one process.
// Expired entries are treated as free and removed by Sweep.
type Lock struct {
	mu    sync.Mutex
	locks map[string]lease
	now   func() time.Time
}

type lease struct {
	owner   string
	expires time.Time
}

// NewLock creates an empty in-process lock table.
func NewLock() *Lock {
	return &Lock{
		locks: make(map[string]lease),
		now:   time.Now,
	}
}

// Acquire takes the named lock for owner if it is free or expired.
func (l *Lock) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.locks[name]; ok && now.Before(held.expires) {
		return false, nil
	}
	l.locks[name] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

// Release frees the named lock if owner holds it.
// A lock that expired and was taken by someone else is left alone.
func (l *Lock) Release(ctx context.Context, name, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.locks[name]; ok && held.owner == owner {
		delete(l.locks, name)
	}
	return nil
}

// Extend pushes the expiry of a lock owner holds.
func (l *Lock) Extend(ctx context.Context, name, owner string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	held, ok := l.locks[name]
	if !ok || held.owner != owner || !now.Before(held.expires) {
		return fmt.Errorf("extend lock %s: %w", name, domain.ErrNotFound)
	}
	held.expires = now.Add(ttl)
	l.locks[name] = held
	return nil
}

// Ping always succeeds.
func (l *Lock) Ping(ctx context.Context) error {
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (l *Lock) Sweep(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for name, held := range l.locks {
		if !now.Before(held.expires) {
			delete(l.locks, name)
			removed++
		}
	}
	return removed
}

// Held returns the number of live locks.
func (l *Lock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for _, held := range l.locks {
		if now.Before(held.expires) {
			n++
		}
	}
	return n
}
