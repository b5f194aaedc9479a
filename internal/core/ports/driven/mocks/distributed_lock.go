package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

var _ driven.DistributedLock = (*MockDistributedLock)(nil)

// MockDistributedLock keeps lock owners and expiries in memory.
// The Fn hooks replace the default behaviour when set.
type MockDistributedLock struct {
	mu       sync.Mutex
	expiries map[string]time.Time
	owners   map[string]string
	acquired []string
	released []string

	// Now is the clock used for expiry checks
	Now func() time.Time

	AcquireFn func(name string, ttl time.Duration) (bool, error)
	ReleaseFn func(name string) error
	ExtendFn  func(name string, ttl time.Duration) error
	PingFn    func() error
}

// NewMockDistributedLock creates an empty lock table.
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		expiries: make(map[string]time.Time),
		owners:   make(map[string]string),
		Now:      time.Now,
	}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	if expiry, ok := m.expiries[name]; ok && now.Before(expiry) {
		return false, nil
	}
	m.expiries[name] = now.Add(ttl)
	m.owners[name] = owner
	m.acquired = append(m.acquired, name)
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name, owner string) error {
	if m.ReleaseFn != nil {
		return m.ReleaseFn(name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.released = append(m.released, name)
	if m.owners[name] == owner {
		delete(m.expiries, name)
		delete(m.owners, name)
	}
	return nil
}

func (m *MockDistributedLock) Extend(ctx context.Context, name, owner string, ttl time.Duration) error {
	if m.ExtendFn != nil {
		return m.ExtendFn(name, ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	if expiry, ok := m.expiries[name]; !ok || m.owners[name] != owner || !now.Before(expiry) {
		return fmt.Errorf("%w: lock %s", domain.ErrNotFound, name)
	}
	m.expiries[name] = now.Add(ttl)
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

// Acquired returns the names successfully acquired, in call order.
func (m *MockDistributedLock) Acquired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acquired...)
}

// Released returns the names passed to Release, in call order.
func (m *MockDistributedLock) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}

// IsHeld reports whether name is held and unexpired.
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.expiries[name]
	return ok && m.Now().Before(expiry)
}

// SetLockHeld simulates another instance holding name.
func (m *MockDistributedLock) SetLockHeld(name string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiries[name] = m.Now().Add(ttl)
	m.owners[name] = "other-instance"
}
