package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(id string, version int, user string, platform domain.Platform, at time.Time, contents ...string) *domain.ChatRecord {
	r := &domain.ChatRecord{
		ID:            id,
		UserID:        user,
		Platform:      platform,
		Fingerprint:   "fp-" + id,
		VersionNumber: version,
		ImportedAt:    at,
	}
	for i, c := range contents {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		r.Messages = append(r.Messages, domain.CanonicalMessage{Role: role, Content: c})
	}
	return r
}

func TestStore_SaveAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 10, 0, 5, 123000000, time.UTC)
	r := record("chat-1", 1, "alice", domain.PlatformClaude, at, "How do I split this?", "Extract the loop body.")
	r.Messages[0].Timestamp = &at
	r.Messages[0].SourceMetadata = map[string]any{"uuid": "m1"}
	r.Attachments = []domain.MediaAttachment{{
		ID: "att-1", Type: domain.MediaTypeAudio, Name: "memo.mp3", StorageRef: "attachments/att-1/memo.mp3",
		ProcessedContent: &domain.ProcessedMedia{
			Status:             domain.MediaStatusComplete,
			TranscriptSegments: []domain.TranscriptSegment{{Start: 0, End: 3.5, Text: "hello"}},
		},
	}}
	r.Warnings = []domain.ImportWarning{{AttachmentID: "att-2", Kind: domain.KindTimeout, Message: "deadline"}}
	require.NoError(t, store.Save(ctx, r))

	got, err := store.Get(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlatformClaude, got.Platform)
	assert.Equal(t, at, got.ImportedAt)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, domain.RoleUser, got.Messages[0].Role)
	require.NotNil(t, got.Messages[0].Timestamp)
	assert.Equal(t, at, *got.Messages[0].Timestamp)
	assert.Equal(t, "m1", got.Messages[0].SourceMetadata["uuid"])
	assert.Nil(t, got.Messages[1].Timestamp)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, 3.5, got.Attachments[0].ProcessedContent.TranscriptSegments[0].End)
	assert.Equal(t, domain.KindTimeout, got.Warnings[0].Kind)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_VersionsAreAppendOnly(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, record("chat-1", 1, "alice", domain.PlatformChatGPT, at, "v1")))
	err := store.Save(ctx, record("chat-1", 1, "alice", domain.PlatformChatGPT, at, "overwrite"))
	assert.ErrorIs(t, err, domain.ErrStorage)

	require.NoError(t, store.Save(ctx, record("chat-1", 2, "alice", domain.PlatformChatGPT, at.Add(time.Hour), "v2")))

	versions, err := store.ListVersions(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v1", versions[0].Messages[0].Content, "version 1 is untouched")
	assert.Equal(t, "v2", versions[1].Messages[0].Content)

	latest, err := store.FindByFingerprint(ctx, "fp-chat-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.VersionNumber)

	unknown, err := store.FindByFingerprint(ctx, "fp-unknown")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestStore_ListByUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		platform := domain.PlatformChatGPT
		if i%3 == 0 {
			platform = domain.PlatformGemini
		}
		require.NoError(t, store.Save(ctx, record(fmt.Sprintf("chat-%02d", i), 1, "alice", platform, base.Add(time.Duration(i)*time.Minute), "hi")))
	}
	require.NoError(t, store.Save(ctx, record("chat-00", 2, "alice", domain.PlatformGemini, base.Add(time.Hour), "hi again")))
	require.NoError(t, store.Save(ctx, record("bob-1", 1, "bob", domain.PlatformChatGPT, base, "hi")))

	page, total, err := store.ListByUser(ctx, "alice", domain.ListOptions{Page: 1, PerPage: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, total, "only latest versions are counted")
	require.Len(t, page, 5)
	assert.Equal(t, "chat-00", page[0].ID)
	assert.Equal(t, 2, page[0].VersionNumber)
	assert.Equal(t, "chat-11", page[1].ID)

	last, _, err := store.ListByUser(ctx, "alice", domain.ListOptions{Page: 3, PerPage: 5})
	require.NoError(t, err)
	assert.Len(t, last, 2)

	gemini, total, err := store.ListByUser(ctx, "alice", domain.ListOptions{Platform: domain.PlatformGemini})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	for _, r := range gemini {
		assert.Equal(t, domain.PlatformGemini, r.Platform)
	}
}

func TestStore_SearchMessages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, record("chat-1", 1, "alice", domain.PlatformChatGPT, at, "Tell me about Goroutines")))
	require.NoError(t, store.Save(ctx, record("chat-1", 2, "alice", domain.PlatformChatGPT, at, "Tell me about channels")))
	require.NoError(t, store.Save(ctx, record("chat-2", 1, "alice", domain.PlatformClaude, at.Add(time.Minute), "50% off_sale")))
	require.NoError(t, store.Save(ctx, record("chat-3", 1, "bob", domain.PlatformClaude, at, "goroutines too")))

	hits, err := store.SearchMessages(ctx, "alice", "GOROUTINES", 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "older versions are not searched")

	hits, err = store.SearchMessages(ctx, "alice", "channels", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].VersionNumber)

	hits, err = store.SearchMessages(ctx, "alice", "% off_", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1, "keywords match literally")
	assert.Equal(t, "chat-2", hits[0].ID)

	hits, err = store.SearchMessages(ctx, "alice", "tell", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestStore_SearchMessagesFoldsUnicode(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, record("chat-1", 1, "alice", domain.PlatformMistral, at, "Rendez-vous à l'ÉCOLE demain")))
	require.NoError(t, store.Save(ctx, record("chat-2", 1, "alice", domain.PlatformGemini, at, "ΣΟΦΙΑ")))

	hits, err := store.SearchMessages(ctx, "alice", "école", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chat-1", hits[0].ID)

	hits, err = store.SearchMessages(ctx, "alice", "σοφ", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chat-2", hits[0].ID)
}

func TestStore_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxstitch.sqlite")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, record("chat-1", 1, "alice", domain.PlatformMistral, time.Now(), "persist me")))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "persist me", got.Messages[0].Content)
	assert.NoError(t, reopened.Ping(ctx))
}
