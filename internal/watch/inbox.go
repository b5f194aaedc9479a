// Package watch turns a directory into an import inbox. Files and bundle
// directories dropped into it are imported once they stop changing, then
// moved to processed/ or failed/.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	// DefaultSettle is how long an entry must stay unchanged before import
	DefaultSettle = 2 * time.Second
)

// Handler imports one inbox entry
type Handler func(ctx context.Context, path string) error

// Config holds inbox settings
type Config struct {
	Dir     string
	Handler Handler
	Settle  time.Duration
	Logger  *slog.Logger
}

// Inbox watches a directory and hands settled entries to the handler
type Inbox struct {
	dir     string
	handler Handler
	settle  time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	timers   map[string]*pending
	inflight map[string]bool
	wg       sync.WaitGroup
}

// New creates an inbox, creating the directory layout if needed.
func New(cfg Config) (*Inbox, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watch: directory required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("watch: handler required")
	}
	for _, sub := range []string{"", ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("watch: create %s: %w", filepath.Join(cfg.Dir, sub), err)
		}
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Inbox{
		dir:      cfg.Dir,
		handler:  cfg.Handler,
		settle:   cfg.Settle,
		logger:   logger.With("component", "inbox", "dir", cfg.Dir),
		timers:   make(map[string]*pending),
		inflight: make(map[string]bool),
	}, nil
}

// Run scans existing entries, then watches for new ones until ctx is done.
// It waits for in-flight imports before returning.
func (i *Inbox) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(i.dir); err != nil {
		return fmt.Errorf("watch %s: %w", i.dir, err)
	}

	i.Scan(ctx)
	i.logger.Info("inbox watching")

	defer i.wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if i.eligible(event.Name) {
				i.schedule(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			i.logger.Warn("watcher error", "error", err)
		}
	}
}

// Scan schedules every eligible entry already in the inbox and returns how many.
func (i *Inbox) Scan(ctx context.Context) int {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		i.logger.Warn("inbox scan failed", "error", err)
		return 0
	}
	n := 0
	for _, e := range entries {
		path := filepath.Join(i.dir, e.Name())
		if i.eligible(path) {
			i.schedule(ctx, path)
			n++
		}
	}
	return n
}

// eligible skips hidden entries, the outcome directories and vanished paths.
func (i *Inbox) eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || name == ProcessedDir || name == FailedDir {
		return false
	}
	if filepath.Dir(path) != filepath.Clean(i.dir) {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// pending is a settle timer owned by one inbox entry
type pending struct {
	timer *time.Timer
}

// schedule (re)starts the settle timer for path.
func (i *Inbox) schedule(ctx context.Context, path string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if p, ok := i.timers[path]; ok && p.timer.Stop() {
		p.timer.Reset(i.settle)
		return
	}
	p := &pending{}
	i.wg.Add(1)
	p.timer = time.AfterFunc(i.settle, func() {
		defer i.wg.Done()
		i.fire(ctx, path, p)
	})
	i.timers[path] = p
}

func (i *Inbox) fire(ctx context.Context, path string, p *pending) {
	i.mu.Lock()
	if i.timers[path] == p {
		delete(i.timers, path)
	}
	if i.inflight[path] || ctx.Err() != nil {
		i.mu.Unlock()
		return
	}
	i.inflight[path] = true
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		delete(i.inflight, path)
		i.mu.Unlock()
	}()

	if _, err := os.Stat(path); err != nil {
		return
	}

	err := i.handler(ctx, path)
	if err != nil && ctx.Err() != nil {
		// Interrupted by shutdown; the entry is retried on the next start
		return
	}
	outcome := ProcessedDir
	if err != nil {
		outcome = FailedDir
		i.logger.Warn("inbox import failed", "entry", filepath.Base(path), "error", err)
	} else {
		i.logger.Info("inbox import done", "entry", filepath.Base(path))
	}
	if err := i.move(path, outcome); err != nil {
		i.logger.Error("inbox move failed", "entry", filepath.Base(path), "error", err)
	}
}

// move renames path into the outcome directory, suffixing on collision.
func (i *Inbox) move(path, outcome string) error {
	name := filepath.Base(path)
	target := filepath.Join(i.dir, outcome, name)
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(i.dir, outcome, fmt.Sprintf("%s.%d", name, time.Now().UnixNano()))
	}
	return os.Rename(path, target)
}

// wait stops pending timers and waits for running imports.
func (i *Inbox) wait() {
	i.mu.Lock()
	for path, p := range i.timers {
		if p.timer.Stop() {
			i.wg.Done()
		}
		delete(i.timers, path)
	}
	i.mu.Unlock()
	i.wg.Wait()
}
