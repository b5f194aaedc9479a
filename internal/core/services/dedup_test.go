package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven/mocks"
)

func TestFingerprint(t *testing.T) {
	base := Fingerprint([]byte("hello\nworld"), "")

	assert.Len(t, base, 64, "hex encoded BLAKE2b-256")
	assert.Equal(t, base, Fingerprint([]byte("hello\r\nworld"), ""), "CRLF is normalized")
	assert.Equal(t, base, Fingerprint([]byte("  hello\nworld\n\n"), ""), "surrounding whitespace is trimmed")
	assert.NotEqual(t, base, Fingerprint([]byte("hello\nworld"), domain.PlatformClaude), "declared platform is part of the fingerprint")
	assert.NotEqual(t, base, Fingerprint([]byte("hello world"), ""))
}

func newGuard() (*DedupGuard, *mocks.MockDistributedLock, *mocks.MockChatRecordStore) {
	lock := mocks.NewMockDistributedLock()
	store := mocks.NewMockChatRecordStore()
	return NewDedupGuard(DedupGuardConfig{Lock: lock, Store: store}), lock, store
}

func TestDedupGuard_BeginImport(t *testing.T) {
	guard, lock, _ := newGuard()
	ctx := context.Background()

	admission, job, err := guard.BeginImport(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Admitted, admission)
	require.NotNil(t, job)
	assert.NotEmpty(t, job.Token)
	assert.True(t, lock.IsHeld("import:fp-1"))

	admission, job, err = guard.BeginImport(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlreadyRunning, admission)
	assert.Nil(t, job)

	admission, _, err = guard.BeginImport(ctx, "fp-2")
	require.NoError(t, err)
	assert.Equal(t, domain.Admitted, admission, "different fingerprints run concurrently")

	running := guard.Running()
	require.Len(t, running, 2)
	assert.Equal(t, domain.JobRunning, running[0].State)
}

func TestDedupGuard_HeldByOtherInstance(t *testing.T) {
	guard, lock, _ := newGuard()
	lock.SetLockHeld("import:fp-1", time.Minute)

	admission, _, err := guard.BeginImport(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlreadyRunning, admission)
	assert.Empty(t, guard.Running())
}

func TestDedupGuard_CompleteReleases(t *testing.T) {
	guard, lock, _ := newGuard()
	ctx := context.Background()

	_, job, err := guard.BeginImport(ctx, "fp-1")
	require.NoError(t, err)
	require.NoError(t, guard.CompleteImport(ctx, job, domain.JobDone))

	assert.False(t, lock.IsHeld("import:fp-1"))
	assert.Equal(t, []string{"import:fp-1"}, lock.Released())
	assert.Empty(t, guard.Running())

	admission, _, err := guard.BeginImport(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Admitted, admission, "a finished fingerprint can be imported again")
}

func TestDedupGuard_LockBackendError(t *testing.T) {
	guard, lock, _ := newGuard()
	lock.AcquireFn = func(string, time.Duration) (bool, error) {
		return false, errors.New("connection refused")
	}

	_, _, err := guard.BeginImport(context.Background(), "fp-1")
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestDedupGuard_NextVersion(t *testing.T) {
	guard, _, store := newGuard()
	ctx := context.Background()

	id, version, err := guard.NextVersion(ctx, "fp-1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, version)

	require.NoError(t, store.Save(ctx, &domain.ChatRecord{ID: id, Fingerprint: "fp-1", VersionNumber: 1}))
	require.NoError(t, store.Save(ctx, &domain.ChatRecord{ID: id, Fingerprint: "fp-1", VersionNumber: 2}))

	nextID, next, err := guard.NextVersion(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, id, nextID)
	assert.Equal(t, 3, next)
}

func TestDedupGuard_SweepExpired(t *testing.T) {
	guard, lock, _ := newGuard()
	ctx := context.Background()

	_, _, err := guard.BeginImport(ctx, "old")
	require.NoError(t, err)

	start := time.Now()
	guard.now = func() time.Time { return start.Add(DefaultJobTTL + time.Minute) }
	_, _, err = guard.BeginImport(ctx, "fresh")
	require.NoError(t, err)

	assert.Equal(t, 1, guard.SweepExpired(ctx))
	assert.Contains(t, lock.Released(), "import:old")

	running := guard.Running()
	require.Len(t, running, 1)
	assert.Equal(t, "fresh", running[0].Fingerprint)
}

func TestDedupGuard_SweepExpiredLogsReleaseFailure(t *testing.T) {
	var buf bytes.Buffer
	lock := mocks.NewMockDistributedLock()
	guard := NewDedupGuard(DedupGuardConfig{
		Lock:   lock,
		Store:  mocks.NewMockChatRecordStore(),
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	})
	ctx := context.Background()

	_, _, err := guard.BeginImport(ctx, "stuck")
	require.NoError(t, err)

	lock.ReleaseFn = func(string) error { return errors.New("connection reset") }
	guard.now = func() time.Time { return time.Now().Add(DefaultJobTTL + time.Minute) }

	assert.Equal(t, 1, guard.SweepExpired(ctx))
	assert.Empty(t, guard.Running())
	assert.Contains(t, buf.String(), "failed to release import lock")
	assert.Contains(t, buf.String(), "connection reset")
}

func TestDedupGuard_LateCompleteKeepsNewHolder(t *testing.T) {
	guard, lock, _ := newGuard()
	ctx := context.Background()
	start := time.Now()

	_, first, err := guard.BeginImport(ctx, "fp-1")
	require.NoError(t, err)

	// The first import overruns its TTL and a second one takes the fingerprint
	lock.Now = func() time.Time { return start.Add(DefaultJobTTL + time.Minute) }
	guard.now = lock.Now
	admission, second, err := guard.BeginImport(ctx, "fp-1")
	require.NoError(t, err)
	require.Equal(t, domain.Admitted, admission)
	assert.NotEqual(t, first.Token, second.Token)

	require.NoError(t, guard.CompleteImport(ctx, first, domain.JobFailed))

	assert.True(t, lock.IsHeld("import:fp-1"), "late completion must not free the new holder's lock")
	running := guard.Running()
	require.Len(t, running, 1)
	assert.Equal(t, second.Token, running[0].Token)
	assert.Error(t, guard.Extend(ctx, first))
	assert.NoError(t, guard.Extend(ctx, second))

	admission, _, err = guard.BeginImport(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlreadyRunning, admission)

	require.NoError(t, guard.CompleteImport(ctx, second, domain.JobDone))
	assert.False(t, lock.IsHeld("import:fp-1"))
	assert.Empty(t, guard.Running())
}

func TestDedupGuard_Extend(t *testing.T) {
	guard, _, _ := newGuard()
	ctx := context.Background()

	stale := &domain.ImportJob{Fingerprint: "fp-1", Token: "never-admitted"}
	assert.ErrorIs(t, guard.Extend(ctx, stale), domain.ErrNotFound, "cannot extend a lock that is not held")

	_, job, err := guard.BeginImport(ctx, "fp-1")
	require.NoError(t, err)

	later := time.Now().Add(10 * time.Minute)
	guard.now = func() time.Time { return later }
	require.NoError(t, guard.Extend(ctx, job))

	running := guard.Running()
	require.Len(t, running, 1)
	assert.Equal(t, later.Add(DefaultJobTTL), running[0].ExpiresAt)

	guard.now = func() time.Time { return job.StartedAt.Add(DefaultJobTTL + time.Minute) }
	assert.Zero(t, guard.SweepExpired(ctx), "an extended job outlives its original TTL")
}
