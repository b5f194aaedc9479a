package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// MockChatRecordStore is an in-memory versioned ChatRecordStore for testing
type MockChatRecordStore struct {
	mu            sync.RWMutex
	versions      map[string][]*domain.ChatRecord
	byFingerprint map[string]string

	// SaveFn overrides Save when set
	SaveFn func(record *domain.ChatRecord) error
}

// NewMockChatRecordStore creates a new MockChatRecordStore
func NewMockChatRecordStore() *MockChatRecordStore {
	return &MockChatRecordStore{
		versions:      make(map[string][]*domain.ChatRecord),
		byFingerprint: make(map[string]string),
	}
}

func (m *MockChatRecordStore) Save(ctx context.Context, record *domain.ChatRecord) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(record); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.versions[record.ID] {
		if existing.VersionNumber == record.VersionNumber {
			return fmt.Errorf("%w: version %d of %s already stored", domain.ErrStorage, record.VersionNumber, record.ID)
		}
	}
	m.versions[record.ID] = append(m.versions[record.ID], record)
	m.byFingerprint[record.Fingerprint] = record.ID
	return nil
}

func (m *MockChatRecordStore) FindByFingerprint(ctx context.Context, fingerprint string) (*domain.ChatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byFingerprint[fingerprint]
	if !ok {
		return nil, nil
	}
	return m.latest(id), nil
}

func (m *MockChatRecordStore) Get(ctx context.Context, id string) (*domain.ChatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec := m.latest(id)
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (m *MockChatRecordStore) ListVersions(ctx context.Context, id string) ([]*domain.ChatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := append([]*domain.ChatRecord(nil), m.versions[id]...)
	if len(versions) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionNumber < versions[j].VersionNumber
	})
	return versions, nil
}

func (m *MockChatRecordStore) ListByUser(ctx context.Context, userID string, opts domain.ListOptions) ([]*domain.ChatRecord, int, error) {
	opts = opts.Normalize()
	all := m.userRecords(userID, opts.Platform)
	total := len(all)

	start := opts.Offset()
	if start > total {
		start = total
	}
	end := start + opts.PerPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *MockChatRecordStore) SearchMessages(ctx context.Context, userID, keyword string, limit int) ([]*domain.ChatRecord, error) {
	needle := strings.ToLower(keyword)
	var result []*domain.ChatRecord
	for _, rec := range m.userRecords(userID, "") {
		for _, msg := range rec.Messages {
			if strings.Contains(strings.ToLower(msg.Content), needle) {
				result = append(result, rec)
				break
			}
		}
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MockChatRecordStore) Ping(ctx context.Context) error {
	return nil
}

// VersionCount returns how many versions are stored for a record (for test assertions).
func (m *MockChatRecordStore) VersionCount(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.versions[id])
}

// userRecords returns latest versions for a user, newest import first.
func (m *MockChatRecordStore) userRecords(userID string, platform domain.Platform) []*domain.ChatRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.ChatRecord
	for id := range m.versions {
		rec := m.latest(id)
		if rec.UserID != userID {
			continue
		}
		if platform != "" && rec.Platform != platform {
			continue
		}
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ImportedAt.Equal(result[j].ImportedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].ImportedAt.After(result[j].ImportedAt)
	})
	return result
}

func (m *MockChatRecordStore) latest(id string) *domain.ChatRecord {
	var latest *domain.ChatRecord
	for _, rec := range m.versions[id] {
		if latest == nil || rec.VersionNumber > latest.VersionNumber {
			latest = rec
		}
	}
	return latest
}
