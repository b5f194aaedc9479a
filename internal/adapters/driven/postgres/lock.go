package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*AdvisoryLock)(nil)

// AdvisoryLock implements DistributedLock with session-level advisory locks.
//
// Advisory locks belong to a connection, so every held lock pins one pooled
// connection until it is released. The TTL is not enforced by PostgreSQL;
// a lock held past its TTL is only freed by Release, Sweep or a lost
// connection. Prefer the Redis lock when imports may outlive a process.
type AdvisoryLock struct {
	db *DB

	mu   sync.Mutex
	held map[string]*heldLock
}

type heldLock struct {
	conn    *sql.Conn
	owner   string
	expires time.Time
}

// NewAdvisoryLock creates a new PostgreSQL advisory lock adapter.
func NewAdvisoryLock(db *DB) *AdvisoryLock {
	return &AdvisoryLock{db: db, held: make(map[string]*heldLock)}
}

// lockKey maps a lock name onto the 64-bit advisory lock key space.
func lockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte("voxstitch:lock:" + name))
	return int64(h.Sum64())
}

// Acquire tries the lock for owner without blocking.
func (l *AdvisoryLock) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[name]; ok {
		return false, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockKey(name)).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}

	l.held[name] = &heldLock{conn: conn, owner: owner, expires: time.Now().Add(ttl)}
	return true, nil
}

// Release unlocks on the connection that took the lock and returns it to the pool.
// A lock held by another owner is left alone.
func (l *AdvisoryLock) Release(ctx context.Context, name, owner string) error {
	l.mu.Lock()
	h, ok := l.held[name]
	if !ok || h.owner != owner {
		l.mu.Unlock()
		return nil
	}
	delete(l.held, name)
	l.mu.Unlock()

	return unlock(ctx, name, h.conn)
}

// Extend pushes back the local expiry of a lock owner holds.
func (l *AdvisoryLock) Extend(ctx context.Context, name, owner string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.held[name]
	if !ok || h.owner != owner {
		return fmt.Errorf("%w: lock %s not held by %s", domain.ErrNotFound, name, owner)
	}
	h.expires = time.Now().Add(ttl)
	return nil
}

// Sweep releases locks held past their TTL and returns how many it freed.
func (l *AdvisoryLock) Sweep(ctx context.Context) int {
	now := time.Now()

	l.mu.Lock()
	expired := make(map[string]*heldLock)
	for name, h := range l.held {
		if now.After(h.expires) {
			expired[name] = h
			delete(l.held, name)
		}
	}
	l.mu.Unlock()

	for name, h := range expired {
		// A failed unlock discards the connection, which frees the lock anyway
		_ = unlock(ctx, name, h.conn)
	}
	return len(expired)
}

// Ping checks if the PostgreSQL backend is healthy.
func (l *AdvisoryLock) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// unlockTimeout bounds the unlock query, which still runs when the caller's
// context is already cancelled.
const unlockTimeout = 5 * time.Second

// unlock frees name on the connection holding it. When the lock cannot be
// confirmed released, the connection is discarded instead of pooled so the
// server drops the session and its advisory locks with it.
func unlock(ctx context.Context, name string, conn *sql.Conn) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
	defer cancel()

	var released bool
	err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", lockKey(name)).Scan(&released)
	if err == nil && released {
		return conn.Close()
	}

	discard(conn)
	if err != nil {
		return fmt.Errorf("%w: release lock %s: %v", domain.ErrStorage, name, err)
	}
	return fmt.Errorf("%w: lock %s was not held by its session", domain.ErrStorage, name)
}

// discard closes the underlying driver connection rather than returning it to the pool.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}
