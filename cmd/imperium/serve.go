// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cnnetwork/imperium/internal/observability"
	"github.com/cnnetwork/imperium/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the account core",
		Long: `Connect to PostgreSQL, apply pending migrations, expose metrics and
health probes, and reap expired sessions until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runServe(ctx, cmd, deps)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	logger.Info("starting imperium",
		"version", version,
		"metrics_addr", cfg.Metrics.Addr,
		"testing", cfg.Testing,
	)

	pool, err := deps.PoolFactory(ctx, poolConfig(cfg), logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if err := withMigratorURL(cfg.Database.URL, deps, func(m Migrator) error { return m.Up() }); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "auto-migrate").Wrap(err)
	}
	logger.Info("database schema up to date")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, pool.Ping, logger)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		metrics = obsServer.Metrics()
	}

	svc, events, err := newService(cfg, logger, deps.StoreFactory(pool), metrics)
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}
	defer events.Close()

	if cfg.Testing {
		if _, err := svc.SeedTestAccount(ctx); err != nil {
			stopObservability(obsServer, logger)
			return err
		}
	}

	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		runReaper(ctx, svc, cfg.Session.ReapInterval, metrics, logger)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Imperium started")
	logger.Info("imperium ready")

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	cancel()
	<-reaperDone
	stopObservability(obsServer, logger)
	logger.Info("shutdown complete")
	return nil
}

// sessionPurger is the part of account.Service the reaper uses.
type sessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// runReaper purges expired sessions every interval until ctx ends. metrics
// may be nil.
func runReaper(ctx context.Context, svc sessionPurger, interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpiredSessions(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errutil.LogError(ctx, logger, "failed to purge expired sessions", err)
				continue
			}
			if metrics != nil {
				metrics.RecordPurged(n)
			}
			if n > 0 {
				logger.DebugContext(ctx, "purged expired sessions", "count", n)
			}
		}
	}
}

func stopObservability(server ObservabilityServer, logger *slog.Logger) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when the server reports an error. It
// returns when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
