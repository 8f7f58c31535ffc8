package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/config"
	"github.com/sandeepkv93/medd/internal/tracker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reminder daemon",
	Long: `Keeps reminders firing for the logged-in user.

On start, and then on reconcile.cron, the daemon reconciles stored reminders
against the live ones and cancels live ones no medication owns any more. That
is how changes made by other medd commands reach the daemon.

The adherence sweep runs on sweep.cron. Metrics are served on metrics.addr
when set, and edits to the config file are applied live.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	a.notifier.Start()

	sweeper, err := tracker.NewSweeper(a.svc, cfg.Sweep.Cron, time.Local)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	var (
		current atomic.Pointer[config.Config]
		passMu  sync.Mutex
	)
	current.Store(cfg)
	// One-shot test alarms are not owned by any medication.
	keepOneShots := func(handle string) bool {
		_, daily := a.notifier.DailyTriggerOf(handle)
		return !daily
	}
	reconcile := func() {
		passMu.Lock()
		defer passMu.Unlock()
		rctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		sessionPath := current.Load().Session.Path
		user, err := a.svc.ActiveUser(rctx, sessionPath)
		if err != nil {
			logger.Debug("reconcile skipped, no active user", zap.Error(err))
			return
		}
		if _, err := a.svc.Reconcile(rctx, user.ID); err != nil {
			logger.Warn("reconcile failed", zap.String("email", user.Email), zap.Error(err))
			return
		}
		if _, err := a.svc.Prune(rctx, user.ID, keepOneShots); err != nil {
			logger.Warn("prune failed", zap.String("email", user.Email), zap.Error(err))
		}
	}
	reconcile()

	periodic := cron.New(cron.WithLocation(time.Local))
	if _, err := periodic.AddFunc(cfg.Reconcile.Cron, reconcile); err != nil {
		return err
	}
	periodic.Start()
	defer func() { <-periodic.Stop().Done() }()

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: a.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	watchDone := make(chan struct{})
	if cfg.File != "" {
		go func() {
			defer close(watchDone)
			err := config.Watch(ctx, cfg, logger, func(next *config.Config) {
				current.Store(next)
				reconcile()
			})
			if err != nil {
				logger.Warn("config watch stopped", zap.Error(err))
			}
		}()
	} else {
		close(watchDone)
	}

	logger.Info("medd running",
		zap.String("database", cfg.Database.Path),
		zap.String("sweep", cfg.Sweep.Cron),
		zap.String("reconcile", cfg.Reconcile.Cron),
	)
	<-ctx.Done()
	<-watchDone
	logger.Info("medd stopping")
	return nil
}
