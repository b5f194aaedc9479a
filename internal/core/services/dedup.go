package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// DefaultJobTTL bounds how long an import may hold its fingerprint lock
const DefaultJobTTL = 30 * time.Minute

// lockPrefix namespaces import locks in the shared lock backend
const lockPrefix = "import:"

// Fingerprint identifies an import by its normalized raw content and
// declared platform. Attachments are not part of the fingerprint.
func Fingerprint(content []byte, declared domain.Platform) string {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	normalized = bytes.TrimSpace(normalized)

	h, _ := blake2b.New256(nil)
	h.Write(normalized)
	h.Write([]byte{0})
	h.Write([]byte(declared))
	return hex.EncodeToString(h.Sum(nil))
}

// DedupGuard admits at most one running import per fingerprint and
// assigns record versions. The distributed lock is the only point of
// mutual exclusion across instances.
type DedupGuard struct {
	lock   driven.DistributedLock
	store  driven.ChatRecordStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	// jobs tracks imports admitted by this instance
	mu   sync.Mutex
	jobs map[string]*domain.ImportJob
}

// DedupGuardConfig holds dependencies for DedupGuard.
type DedupGuardConfig struct {
	Lock   driven.DistributedLock
	Store  driven.ChatRecordStore
	TTL    time.Duration
	Logger *slog.Logger
}

// NewDedupGuard creates a new dedup guard.
func NewDedupGuard(cfg DedupGuardConfig) *DedupGuard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}

	return &DedupGuard{
		lock:   cfg.Lock,
		store:  cfg.Store,
		ttl:    ttl,
		logger: logger.With("component", "dedup_guard"),
		now:    time.Now,
		jobs:   make(map[string]*domain.ImportJob),
	}
}

// BeginImport atomically claims a fingerprint.
// A concurrent import of the same fingerprint yields AlreadyRunning immediately.
// On admission the returned job carries the token that CompleteImport and
// Extend need; it is nil otherwise.
func (g *DedupGuard) BeginImport(ctx context.Context, fingerprint string) (domain.Admission, *domain.ImportJob, error) {
	token := uuid.NewString()
	acquired, err := g.lock.Acquire(ctx, lockPrefix+fingerprint, token, g.ttl)
	if err != nil {
		return "", nil, fmt.Errorf("%w: acquire import lock: %v", domain.ErrStorage, err)
	}
	if !acquired {
		g.logger.Info("import already running", "fingerprint", short(fingerprint))
		return domain.AlreadyRunning, nil, nil
	}

	now := g.now()
	job := &domain.ImportJob{
		Fingerprint: fingerprint,
		State:       domain.JobRunning,
		StartedAt:   now,
		ExpiresAt:   now.Add(g.ttl),
		Token:       token,
	}
	g.mu.Lock()
	if prev, ok := g.jobs[fingerprint]; ok {
		// The previous holder outlived its TTL
		g.logger.Warn("import lock taken over", "fingerprint", short(fingerprint), "previous_started_at", prev.StartedAt)
	}
	g.jobs[fingerprint] = job
	g.mu.Unlock()

	claimed := *job
	return domain.Admitted, &claimed, nil
}

// CompleteImport records the final job state and releases the fingerprint.
// A job whose lock was taken over after its TTL leaves the new holder alone.
func (g *DedupGuard) CompleteImport(ctx context.Context, job *domain.ImportJob, state domain.JobState) error {
	g.mu.Lock()
	if current, ok := g.jobs[job.Fingerprint]; ok && current.Token == job.Token {
		current.State = state
		delete(g.jobs, job.Fingerprint)
	}
	g.mu.Unlock()

	if err := g.lock.Release(ctx, lockPrefix+job.Fingerprint, job.Token); err != nil {
		g.logger.Warn("failed to release import lock", "fingerprint", short(job.Fingerprint), "error", err)
		return fmt.Errorf("release import lock: %w", err)
	}
	return nil
}

// Extend refreshes the lock TTL of a long-running import.
func (g *DedupGuard) Extend(ctx context.Context, job *domain.ImportJob) error {
	if err := g.lock.Extend(ctx, lockPrefix+job.Fingerprint, job.Token, g.ttl); err != nil {
		return err
	}
	g.mu.Lock()
	if current, ok := g.jobs[job.Fingerprint]; ok && current.Token == job.Token {
		current.ExpiresAt = g.now().Add(g.ttl)
	}
	g.mu.Unlock()
	return nil
}

// NextVersion returns the record ID and version for a new import of the
// fingerprint: a fresh ID at version 1, or the existing ID at latest + 1.
func (g *DedupGuard) NextVersion(ctx context.Context, fingerprint string) (string, int, error) {
	latest, err := g.store.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return "", 0, fmt.Errorf("find by fingerprint: %w", err)
	}
	if latest == nil {
		return uuid.NewString(), 1, nil
	}
	return latest.ID, latest.VersionNumber + 1, nil
}

// Running returns the imports admitted by this instance, oldest first.
func (g *DedupGuard) Running() []domain.ImportJob {
	g.mu.Lock()
	defer g.mu.Unlock()

	jobs := make([]domain.ImportJob, 0, len(g.jobs))
	for _, j := range g.jobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].StartedAt.Before(jobs[k].StartedAt)
	})
	return jobs
}

// SweepExpired forgets local jobs past their lock TTL. Their locks have
// already expired in the backend. Returns the number of jobs removed.
func (g *DedupGuard) SweepExpired(ctx context.Context) int {
	now := g.now()

	g.mu.Lock()
	var expired []*domain.ImportJob
	for fp, job := range g.jobs {
		if !now.Before(job.ExpiresAt) {
			expired = append(expired, job)
			delete(g.jobs, fp)
		}
	}
	g.mu.Unlock()

	for _, job := range expired {
		g.logger.Warn("expired import job swept", "fingerprint", short(job.Fingerprint))
		if err := g.lock.Release(ctx, lockPrefix+job.Fingerprint, job.Token); err != nil {
			g.logger.Warn("failed to release import lock", "fingerprint", short(job.Fingerprint), "error", err)
		}
	}
	return len(expired)
}

// Ping checks the lock backend.
func (g *DedupGuard) Ping(ctx context.Context) error {
	return g.lock.Ping(ctx)
}

func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
