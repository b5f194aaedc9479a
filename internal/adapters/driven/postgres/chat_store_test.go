package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// testDB connects to TEST_DATABASE_URL or skips the test.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, DefaultConfig(url))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(ctx))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `snake\_case`, escapeLike("snake_case"))
	assert.Equal(t, `a\\b`, escapeLike(`a\b`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestChatRecordStore_Versions(t *testing.T) {
	db := testDB(t)
	store := NewChatRecordStore(db)
	ctx := context.Background()

	id := uuid.NewString()
	user := "user-" + uuid.NewString()
	fp := "fp-" + uuid.NewString()
	ts := time.Now().UTC().Truncate(time.Second)

	v1 := &domain.ChatRecord{
		ID: id, UserID: user, Platform: domain.PlatformClaude, Fingerprint: fp, VersionNumber: 1, ImportedAt: ts,
		Messages: []domain.CanonicalMessage{{Role: domain.RoleUser, Content: "100% sure?"}},
	}
	require.NoError(t, store.Save(ctx, v1))

	err := store.Save(ctx, v1)
	assert.ErrorIs(t, err, domain.ErrStorage, "an existing version is never overwritten")

	v2 := *v1
	v2.VersionNumber = 2
	v2.ImportedAt = ts.Add(time.Minute)
	require.NoError(t, store.Save(ctx, &v2))

	latest, err := store.FindByFingerprint(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.VersionNumber)

	missing, err := store.FindByFingerprint(ctx, "fp-unknown-"+uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)

	versions, err := store.ListVersions(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.Equal(t, "100% sure?", versions[0].Messages[0].Content)

	_, err = store.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	page, total, err := store.ListByUser(ctx, user, domain.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, 2, page[0].VersionNumber)

	hits, err := store.SearchMessages(ctx, user, "100%", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = store.SearchMessages(ctx, user, "1000", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
