package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// PublishedEvent is an event captured by MockEventPublisher
type PublishedEvent struct {
	Subject string
	Payload any
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	Err    error
}

func (m *MockEventPublisher) Publish(subject string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, PublishedEvent{Subject: subject, Payload: payload})
	return nil
}

// Events returns a copy of the captured events.
func (m *MockEventPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedEvent(nil), m.events...)
}

// MockImportQuota rejects the users listed in Rejected
type MockImportQuota struct {
	Rejected map[string]bool
}

func (m *MockImportQuota) Allow(ctx context.Context, userID string) error {
	if m.Rejected[userID] {
		return fmt.Errorf("%w: user %s", domain.ErrQuotaExceeded, userID)
	}
	return nil
}
