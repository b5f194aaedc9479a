package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

func TestQuota_FixedWindow(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	q := NewQuota(client, 2, time.Hour)
	now := time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	require.NoError(t, q.Allow(ctx, "guest"))
	require.NoError(t, q.Allow(ctx, "guest"))

	err := q.Allow(ctx, "guest")
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.NoError(t, q.Allow(ctx, "member"), "quotas are per user")

	left, err := q.Remaining(ctx, "guest")
	require.NoError(t, err)
	assert.Zero(t, left)

	now = now.Add(time.Hour)
	assert.NoError(t, q.Allow(ctx, "guest"), "a new window resets the count")
	left, err = q.Remaining(ctx, "guest")
	require.NoError(t, err)
	assert.Equal(t, int64(1), left)
}

func TestQuota_Disabled(t *testing.T) {
	_, client := setupTestRedis(t)
	q := NewQuota(client, 0, 0)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Allow(context.Background(), "guest"))
	}
	left, err := q.Remaining(context.Background(), "guest")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), left)
}
