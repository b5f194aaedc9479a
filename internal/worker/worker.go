package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolStopped is returned by Submit when the pool is not running.
var ErrPoolStopped = errors.New("worker pool not running")

// Job is a unit of work run by the pool.
// Run receives the context passed to Submit.
type Job struct {
	Name string
	Run  func(ctx context.Context)
}

type queuedJob struct {
	ctx context.Context
	job Job
}

// Pool runs jobs on a fixed number of goroutines.
// Its size bounds concurrent calls to external AI services.
type Pool struct {
	logger *slog.Logger

	// Configuration
	concurrency int
	queueSize   int

	// Internal state
	mu      sync.RWMutex
	running bool
	jobs    chan queuedJob
	stopCh  chan struct{}
	doneCh  chan struct{}

	active    atomic.Int32
	completed atomic.Int64
	abandoned atomic.Int64
}

// PoolConfig holds configuration for the pool.
type PoolConfig struct {
	Logger      *slog.Logger
	Concurrency int // Number of concurrent jobs
	QueueSize   int // Jobs buffered before Submit blocks
}

// NewPool creates a new worker pool.
func NewPool(cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	return &Pool{
		logger:      logger.With("component", "worker_pool"),
		concurrency: concurrency,
		queueSize:   queueSize,
	}
}

// Start launches the worker goroutines.
// They run until Stop is called or ctx is cancelled.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	jobs := make(chan queuedJob, p.queueSize)
	stopCh := make(chan struct{})
	p.jobs, p.stopCh = jobs, stopCh
	p.doneCh = make(chan struct{})
	doneCh := p.doneCh
	p.mu.Unlock()

	p.logger.Info("worker pool starting",
		"concurrency", p.concurrency,
		"queue_size", p.queueSize,
	)

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.processLoop(ctx, workerID, jobs, stopCh)
		}(i)
	}

	go func() {
		wg.Wait()
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(doneCh)
	}()

	return nil
}

// Stop signals the workers and waits for in-flight jobs to finish.
// Jobs still queued are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh
	p.logger.Info("worker pool stopped",
		"completed", p.completed.Load(),
		"abandoned", p.abandoned.Load(),
	)
}

// Wait blocks until the pool stops.
func (p *Pool) Wait() {
	p.mu.RLock()
	doneCh := p.doneCh
	p.mu.RUnlock()
	if doneCh != nil {
		<-doneCh
	}
}

// Submit queues a job. It blocks while the queue is full and gives up when
// ctx is done. A job whose ctx is done by the time a worker picks it up is
// abandoned without running.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	running := p.running
	jobs, stopCh := p.jobs, p.stopCh
	p.mu.RUnlock()

	if !running {
		return ErrPoolStopped
	}

	select {
	case jobs <- queuedJob{ctx: ctx, job: job}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-stopCh:
		return ErrPoolStopped
	}
}

// processLoop is the main processing loop for a worker goroutine.
func (p *Pool) processLoop(ctx context.Context, workerID int, jobs <-chan queuedJob, stopCh <-chan struct{}) {
	logger := p.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker context cancelled")
			return
		case <-stopCh:
			logger.Debug("worker stop signal received")
			return
		case qj := <-jobs:
			p.run(qj, logger)
		}
	}
}

// run executes a single job.
func (p *Pool) run(qj queuedJob, logger *slog.Logger) {
	logger = logger.With("job", qj.job.Name)

	if err := qj.ctx.Err(); err != nil {
		p.abandoned.Add(1)
		logger.Warn("job abandoned before start", "error", err)
		return
	}

	p.active.Add(1)
	defer p.active.Add(-1)

	startTime := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job panicked", "panic", r)
			}
		}()
		qj.job.Run(qj.ctx)
	}()

	p.completed.Add(1)
	logger.Debug("job completed", "duration", time.Since(startTime))
}

// Health describes the pool state.
type Health struct {
	Running     bool  `json:"running"`
	Concurrency int   `json:"concurrency"`
	Active      int   `json:"active"`
	Queued      int   `json:"queued"`
	Completed   int64 `json:"completed"`
	Abandoned   int64 `json:"abandoned"`
}

// Health returns the health status of the pool.
func (p *Pool) Health() Health {
	p.mu.RLock()
	running := p.running
	queued := len(p.jobs)
	p.mu.RUnlock()

	return Health{
		Running:     running,
		Concurrency: p.concurrency,
		Active:      int(p.active.Load()),
		Queued:      queued,
		Completed:   p.completed.Load(),
		Abandoned:   p.abandoned.Load(),
	}
}
