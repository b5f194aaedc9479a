package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLock_InstancesAreUnique(t *testing.T) {
	_, client := setupTestRedis(t)

	a, b := NewLock(client), NewLock(client)
	assert.NotEmpty(t, a.Instance())
	assert.NotEqual(t, a.Instance(), b.Instance())
}

func TestLock_AcquireIsExclusive(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	first, second := NewLock(client), NewLock(client)

	ok, err := first.Acquire(ctx, "import:fp", "job-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx, "import:fp", "job-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a held lock cannot be acquired by another instance")

	ok, err = first.Acquire(ctx, "import:fp", "job-3", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "locks are not reentrant")

	assert.Equal(t, first.Instance()+"/job-1", mustGet(t, mr, "voxstitch:lock:import:fp"))
	assert.Equal(t, time.Minute, mr.TTL("voxstitch:lock:import:fp"))
}

func TestLock_ExpiresAfterTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	first, second := NewLock(client), NewLock(client)

	_, err := first.Acquire(ctx, "import:fp", "job-1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	ok, err := second.Acquire(ctx, "import:fp", "job-2", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ReleaseOnlyByOwner(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	owner, other := NewLock(client), NewLock(client)

	_, err := owner.Acquire(ctx, "import:fp", "job-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, other.Release(ctx, "import:fp", "job-1"))
	assert.True(t, mr.Exists("voxstitch:lock:import:fp"), "foreign release is ignored")

	require.NoError(t, owner.Release(ctx, "import:fp", "job-1"))
	assert.False(t, mr.Exists("voxstitch:lock:import:fp"))

	assert.NoError(t, owner.Release(ctx, "import:fp", "job-1"), "releasing a free lock is fine")
}

func TestLock_LateReleaseKeepsNewOwner(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	lock := NewLock(client)

	_, err := lock.Acquire(ctx, "import:fp", "job-1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	ok, err := lock.Acquire(ctx, "import:fp", "job-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(ctx, "import:fp", "job-1"))
	assert.Equal(t, lock.Instance()+"/job-2", mustGet(t, mr, "voxstitch:lock:import:fp"))
	assert.Error(t, lock.Extend(ctx, "import:fp", "job-1", time.Minute))
}

func TestLock_Extend(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	owner, other := NewLock(client), NewLock(client)

	assert.Error(t, owner.Extend(ctx, "import:fp", "job-1", time.Minute), "cannot extend a free lock")

	_, err := owner.Acquire(ctx, "import:fp", "job-1", time.Second)
	require.NoError(t, err)

	require.NoError(t, owner.Extend(ctx, "import:fp", "job-1", time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("voxstitch:lock:import:fp"))

	assert.Error(t, other.Extend(ctx, "import:fp", "job-1", time.Hour))
}

func TestLock_Holder(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	lock := NewLock(client)

	holder, err := lock.Holder(ctx, "import:fp")
	require.NoError(t, err)
	assert.Empty(t, holder)

	_, err = lock.Acquire(ctx, "import:fp", "job-1", time.Minute)
	require.NoError(t, err)
	holder, err = lock.Holder(ctx, "import:fp")
	require.NoError(t, err)
	assert.Equal(t, lock.Instance()+"/job-1", holder)
}

func TestLock_Ping(t *testing.T) {
	mr, client := setupTestRedis(t)
	lock := NewLock(client)

	assert.NoError(t, lock.Ping(context.Background()))

	mr.Close()
	assert.Error(t, lock.Ping(context.Background()))
}

func TestConnect(t *testing.T) {
	mr, _ := setupTestRedis(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = Connect(context.Background(), "not a url")
	assert.Error(t, err)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
