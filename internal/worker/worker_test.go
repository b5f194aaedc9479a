package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool_Defaults(t *testing.T) {
	p := NewPool(PoolConfig{})
	if p.concurrency != 1 {
		t.Errorf("expected concurrency 1, got %d", p.concurrency)
	}
	if p.queueSize != 64 {
		t.Errorf("expected queue size 64, got %d", p.queueSize)
	}
	if p.logger == nil {
		t.Error("expected default logger")
	}
}

func TestPool_SubmitBeforeStart(t *testing.T) {
	p := NewPool(PoolConfig{Concurrency: 2})
	err := p.Submit(context.Background(), Job{Name: "early", Run: func(context.Context) {}})
	if !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPool_RunsJobs(t *testing.T) {
	p := NewPool(PoolConfig{Concurrency: 3})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), Job{Name: "count", Run: func(context.Context) {
			defer wg.Done()
			ran.Add(1)
		}})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()

	if ran.Load() != 10 {
		t.Errorf("expected 10 jobs to run, got %d", ran.Load())
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(PoolConfig{Concurrency: 2})
	_ = p.Start(context.Background())
	defer p.Stop()

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		_ = p.Submit(context.Background(), Job{Name: "slow", Run: func(context.Context) {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
		}})
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent jobs, saw %d", peak.Load())
	}
}

func TestPool_AbandonsExpiredJobs(t *testing.T) {
	p := NewPool(PoolConfig{Concurrency: 1})
	_ = p.Start(context.Background())
	defer p.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	_ = p.Submit(context.Background(), Job{Name: "blocker", Run: func(context.Context) {
		close(started)
		<-release
	}})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	if err := p.Submit(ctx, Job{Name: "late", Run: func(context.Context) { ran.Store(true) }}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	cancel()
	close(release)

	deadline := time.Now().Add(time.Second)
	for p.Health().Abandoned == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ran.Load() {
		t.Error("expired job must not run")
	}
	if p.Health().Abandoned != 1 {
		t.Errorf("expected 1 abandoned job, got %d", p.Health().Abandoned)
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	p := NewPool(PoolConfig{Concurrency: 1})
	_ = p.Start(context.Background())
	defer p.Stop()

	_ = p.Submit(context.Background(), Job{Name: "boom", Run: func(context.Context) { panic("boom") }})

	done := make(chan struct{})
	_ = p.Submit(context.Background(), Job{Name: "after", Run: func(context.Context) { close(done) }})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not survive a panicking job")
	}
}

func TestPool_StopAndHealth(t *testing.T) {
	p := NewPool(PoolConfig{Concurrency: 2})
	_ = p.Start(context.Background())

	h := p.Health()
	if !h.Running || h.Concurrency != 2 {
		t.Errorf("unexpected health: %+v", h)
	}

	p.Stop()
	if p.Health().Running {
		t.Error("expected pool to be stopped")
	}

	err := p.Submit(context.Background(), Job{Name: "x", Run: func(context.Context) {}})
	if !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped after stop, got %v", err)
	}

	// Stop is idempotent
	p.Stop()
}

func TestPool_ContextCancelStopsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(PoolConfig{Concurrency: 2})
	_ = p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
}
