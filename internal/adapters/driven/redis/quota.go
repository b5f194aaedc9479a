package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ImportQuota = (*Quota)(nil)

const quotaPrefix = "voxstitch:quota:"

// Quota limits imports per user with a fixed window counter.
// A zero Limit disables the check.
type Quota struct {
	client redis.UniversalClient
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewQuota allows limit imports per user per window.
func NewQuota(client redis.UniversalClient, limit int, window time.Duration) *Quota {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Quota{client: client, limit: int64(limit), window: window, now: time.Now}
}

// Allow counts one import for userID and rejects it once the window is spent.
func (q *Quota) Allow(ctx context.Context, userID string) error {
	if q.limit <= 0 {
		return nil
	}

	bucket := q.now().UTC().Truncate(q.window).Unix()
	key := fmt.Sprintf("%s%s:%d", quotaPrefix, userID, bucket)

	pipe := q.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, q.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("count import for %s: %w", userID, err)
	}

	if used := incr.Val(); used > q.limit {
		return fmt.Errorf("%w: %d of %d imports used", domain.ErrQuotaExceeded, used-1, q.limit)
	}
	return nil
}

// Remaining returns how many imports userID has left in the current window.
func (q *Quota) Remaining(ctx context.Context, userID string) (int64, error) {
	if q.limit <= 0 {
		return -1, nil
	}
	bucket := q.now().UTC().Truncate(q.window).Unix()
	used, err := q.client.Get(ctx, fmt.Sprintf("%s%s:%d", quotaPrefix, userID, bucket)).Int64()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("read quota for %s: %w", userID, err)
	}
	if left := q.limit - used; left > 0 {
		return left, nil
	}
	return 0, nil
}
