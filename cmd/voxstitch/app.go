package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/voxstitch/internal/adapters/driven/ai"
	"github.com/custodia-labs/voxstitch/internal/adapters/driven/ffmpeg"
	"github.com/custodia-labs/voxstitch/internal/adapters/driven/memory"
	natsadapter "github.com/custodia-labs/voxstitch/internal/adapters/driven/nats"
	"github.com/custodia-labs/voxstitch/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/voxstitch/internal/adapters/driven/redis"
	"github.com/custodia-labs/voxstitch/internal/adapters/driven/sqlite"
	"github.com/custodia-labs/voxstitch/internal/config"
	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driving"
	"github.com/custodia-labs/voxstitch/internal/core/services"
	"github.com/custodia-labs/voxstitch/internal/detect"
	"github.com/custodia-labs/voxstitch/internal/media"
	"github.com/custodia-labs/voxstitch/internal/normalisers"
	"github.com/custodia-labs/voxstitch/internal/parsers"
	"github.com/custodia-labs/voxstitch/internal/runtime"
	"github.com/custodia-labs/voxstitch/internal/worker"
)

// sweeper reclaims expired locks held by a crashed import
type sweeper interface {
	Sweep(ctx context.Context) int
}

// app holds every wired component for one process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	runtime  *runtime.Services
	store    driven.ChatRecordStore
	lock     driven.DistributedLock
	sweeper  sweeper // nil when the lock backend expires keys itself
	pool     *worker.Pool
	guard    *services.DedupGuard
	importer *services.Importer
	chats    driving.ChatService
	detector *detect.Detector

	closers []func()
}

// newApp connects the backends selected by cfg and builds the import
// pipeline. The worker pool is started on ctx.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	rtConfig := domain.NewRuntimeConfig(cfg.StoreBackend(), cfg.LockBackend())
	a.runtime = runtime.NewServices(rtConfig)

	// ===== Chat record store (PostgreSQL if configured, otherwise SQLite) =====
	var pg *postgres.DB
	if cfg.Database.URL != "" {
		pg, err = postgres.Connect(ctx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, func() { _ = pg.Close() })
		if err = pg.InitSchema(ctx); err != nil {
			return a, err
		}
		a.store = postgres.NewChatRecordStore(pg)
		logger.Info("using postgres chat store")
	} else {
		var lite *sqlite.Store
		lite, err = sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, func() { _ = lite.Close() })
		a.store = lite
		logger.Info("using sqlite chat store", "path", cfg.Database.SQLitePath)
	}

	// ===== Distributed lock and quota (Redis if available) =====
	var quota driven.ImportQuota
	switch cfg.LockBackend() {
	case "redis":
		client, cerr := redisadapter.Connect(ctx, cfg.Redis.URL)
		if cerr != nil {
			return a, cerr
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.lock = redisadapter.NewLock(client)
		if cfg.Import.QuotaLimit > 0 {
			quota = redisadapter.NewQuota(client, cfg.Import.QuotaLimit, cfg.Import.QuotaWindow)
		}
	case "postgres":
		advisory := postgres.NewAdvisoryLock(pg)
		a.lock, a.sweeper = advisory, advisory
	default:
		mem := memory.NewLock()
		a.lock, a.sweeper = mem, mem
	}
	if cfg.Import.QuotaLimit > 0 && quota == nil {
		logger.Warn("import quota requires redis, quota disabled", "limit", cfg.Import.QuotaLimit)
	}
	logger.Info("using distributed lock", "backend", cfg.LockBackend())

	// ===== Event bus (optional) =====
	var events driven.EventPublisher
	if cfg.Events.NATSURL != "" {
		pub, perr := natsadapter.Connect(ctx, natsadapter.Config{
			URL:    cfg.Events.NATSURL,
			Token:  cfg.Events.NATSToken,
			Prefix: cfg.Events.SubjectPrefix,
			Logger: logger,
		})
		if perr != nil {
			return a, perr
		}
		a.closers = append(a.closers, pub.Close)
		events = pub
		logger.Info("publishing import events", "url", cfg.Events.NATSURL)
	}

	// ===== AI collaborators and media toolkit =====
	if err = a.runtime.Configure(ai.NewFactory(cfg.AI.MaxRetries), cfg.AI.Settings); err != nil {
		return a, fmt.Errorf("configure ai services: %w", err)
	}
	toolkit, terr := ffmpeg.New(ffmpeg.Config{Path: cfg.Media.FFmpegPath, Logger: logger})
	if terr != nil {
		logger.Warn("media toolkit unavailable, video attachments will fail", "error", terr)
	} else {
		a.runtime.SetToolkit(toolkit)
	}

	router := media.NewRouter(a.runtime.Collaborators(), media.Config{
		PauseThreshold: cfg.Media.PauseThreshold,
		FrameRate:      cfg.Media.FrameRate,
		SceneThreshold: cfg.Media.SceneThreshold,
		MaxFrames:      cfg.Media.MaxFrames,
		Logger:         logger,
	})

	a.pool = worker.NewPool(worker.PoolConfig{
		Concurrency: cfg.Import.MediaWorkers,
		Logger:      logger,
	})
	if err = a.pool.Start(ctx); err != nil {
		return a, fmt.Errorf("start worker pool: %w", err)
	}
	a.closers = append(a.closers, a.pool.Stop)

	// ===== Services =====
	registry := parsers.BuildRegistry()
	a.detector = detect.New(registry, detect.Config{Threshold: cfg.Import.DetectionThreshold})
	a.guard = services.NewDedupGuard(services.DedupGuardConfig{
		Lock:   a.lock,
		Store:  a.store,
		TTL:    cfg.Import.JobTTL,
		Logger: logger,
	})
	a.importer = services.NewImporter(services.ImporterConfig{
		Detector:   a.detector,
		Registry:   registry,
		Normaliser: normalisers.New(normalisers.Config{Logger: logger}),
		Media: services.NewMediaCoordinator(services.MediaCoordinatorConfig{
			Router: router,
			Pool:   a.pool,
			Logger: logger,
		}),
		Guard:    a.guard,
		Store:    a.store,
		Events:   events,
		Quota:    quota,
		Deadline: cfg.Import.Deadline,
		Logger:   logger,
	})
	a.chats = services.NewChatService(a.store)

	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
