package driven

import (
	"context"
	"time"
)

// DistributedLock claims import fingerprints across instances.
// The dedup guard holds one lock per running import; no other component
// takes a lock. Every acquisition names an owner token, and only that
// owner can release or extend it.
type DistributedLock interface {
	// Acquire claims name for owner until ttl elapses.
	// acquired is false when another holder has it; that is not an error.
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) (acquired bool, err error)

	// Release frees name if owner holds it. Releasing a free, expired or
	// foreign lock is a no-op.
	Release(ctx context.Context, name, owner string) error

	// Extend pushes the expiry of a lock owner holds.
	// Returns an error wrapping domain.ErrNotFound when owner does not hold it.
	Extend(ctx context.Context, name, owner string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
