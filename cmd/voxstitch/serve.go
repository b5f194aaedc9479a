package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	httpserver "github.com/custodia-labs/voxstitch/internal/adapters/driving/http"
	"github.com/custodia-labs/voxstitch/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the inbox directory and serve health endpoints",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var inbox *watch.Inbox
	if a.cfg.Watch.Dir != "" {
		inbox, err = watch.New(watch.Config{
			Dir:     a.cfg.Watch.Dir,
			Handler: importHandler(a),
			Logger:  a.logger,
		})
		if err != nil {
			return err
		}
	} else {
		a.logger.Info("WATCH_DIR not set, inbox disabled")
	}

	scheduler, err := newSweepScheduler(ctx, a, inbox)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	srvCfg := httpserver.DefaultConfig()
	srvCfg.Port = a.cfg.HTTP.Port
	srvCfg.Version = version
	srvCfg.Logger = a.logger
	server := httpserver.NewServer(srvCfg, a.runtime.Config(), a.guard, map[string]httpserver.Pinger{
		"store": a.store,
		"lock":  a.lock,
	})

	errCh := make(chan error, 2)
	go func() { errCh <- server.Start(ctx) }()
	running := 1
	if inbox != nil {
		running++
		go func() { errCh <- inbox.Run(ctx) }()
	}

	a.logger.Info("voxstitch serving", "version", version, "port", srvCfg.Port, "inbox", a.cfg.Watch.Dir)

	// The first component to stop takes the rest down with it
	var first error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) && first == nil {
			first = err
		}
		cancel()
	}
	return first
}

// importHandler imports one inbox entry for the configured watch user.
func importHandler(a *app) watch.Handler {
	return func(ctx context.Context, path string) error {
		req, err := watch.LoadRequest(path)
		if err != nil {
			return err
		}
		result, err := a.importer.SubmitImport(ctx, a.cfg.Watch.UserID, req)
		if err != nil {
			return err
		}
		a.logger.Info("inbox entry imported",
			"entry", filepath.Base(path),
			"chat_record_id", result.ChatRecordID,
			"version", result.VersionNumber,
			"warnings", len(result.Warnings),
		)
		return nil
	}
}

// newSweepScheduler registers the periodic cleanup job: expired import
// jobs, stale lock holders and inbox entries missed by the watcher.
func newSweepScheduler(ctx context.Context, a *app, inbox *watch.Inbox) (*cron.Cron, error) {
	c := cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))

	_, err := c.AddFunc(a.cfg.Sweep.Schedule, func() {
		jobs := a.guard.SweepExpired(ctx)
		locks := 0
		if a.sweeper != nil {
			locks = a.sweeper.Sweep(ctx)
		}
		entries := 0
		if inbox != nil {
			entries = inbox.Scan(ctx)
		}
		if jobs > 0 || locks > 0 || entries > 0 {
			a.logger.Info("sweep finished", "jobs", jobs, "locks", locks, "inbox_entries", entries)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", a.cfg.Sweep.Schedule, err)
	}
	return c, nil
}
