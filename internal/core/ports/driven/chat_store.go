package driven

import (
	"context"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// ChatRecordStore persists versioned chat records.
// The import pipeline only uses Save and FindByFingerprint.
type ChatRecordStore interface {
	// Save appends a record version. An existing (ID, VersionNumber) pair
	// is never overwritten; saving it again returns domain.ErrStorage.
	Save(ctx context.Context, record *domain.ChatRecord) error

	// FindByFingerprint returns the latest version for a fingerprint,
	// or nil, nil when the fingerprint is unknown.
	FindByFingerprint(ctx context.Context, fingerprint string) (*domain.ChatRecord, error)

	// Get returns the latest version of a record or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.ChatRecord, error)

	// ListVersions returns every version of a record, oldest first.
	ListVersions(ctx context.Context, id string) ([]*domain.ChatRecord, error)

	// ListByUser returns latest versions for a user, newest import first,
	// with the total count before pagination.
	ListByUser(ctx context.Context, userID string, opts domain.ListOptions) ([]*domain.ChatRecord, int, error)

	// SearchMessages returns latest-version records of a user containing the keyword.
	SearchMessages(ctx context.Context, userID, keyword string, limit int) ([]*domain.ChatRecord, error)

	// Ping checks if the backend is healthy.
	Ping(ctx context.Context) error
}
