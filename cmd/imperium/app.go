// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cnnetwork/imperium/internal/account"
	"github.com/cnnetwork/imperium/internal/bus"
	"github.com/cnnetwork/imperium/internal/config"
	"github.com/cnnetwork/imperium/internal/hash"
	"github.com/cnnetwork/imperium/internal/observability"
	"github.com/cnnetwork/imperium/internal/store"
)

func poolConfig(cfg config.Config) store.PoolConfig {
	return store.PoolConfig{
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectRetries: cfg.Database.ConnectRetries,
	}
}

// newService wires the account core. metrics may be nil.
func newService(cfg config.Config, logger *slog.Logger, st account.Store, metrics *observability.Metrics) (*account.Service, *bus.Bus, error) {
	hashOpts := []hash.Option{hash.WithConcurrency(cfg.Hash.Concurrency)}
	busOpts := []bus.Option{bus.WithLogger(logger), bus.WithForwarder(bus.LogForwarder{Logger: logger})}
	svcOpts := []account.Option{account.WithLogger(logger)}
	if metrics != nil {
		hashOpts = append(hashOpts, hash.WithObserver(metrics.ObserveHash))
		busOpts = append(busOpts, bus.WithDropRecorder(metrics))
		svcOpts = append(svcOpts, account.WithRecorder(metrics))
	}

	events := bus.New(busOpts...)
	svc, err := account.NewService(st, hash.NewEngine(hashOpts...), account.NoPolicy, events, svcOpts...)
	if err != nil {
		events.Close()
		return nil, nil, err
	}
	return svc, events, nil
}

// session is what a one-shot admin command needs.
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	store   AccountStore
	service *account.Service
}

// withSession loads the configuration, connects and runs fn with a wired
// service. Everything is released when fn returns.
func withSession(cmd *cobra.Command, deps *Deps, fn func(ctx context.Context, s *session) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := deps.PoolFactory(ctx, poolConfig(cfg), logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer pool.Close()

	st := deps.StoreFactory(pool)
	svc, events, err := newService(cfg, logger, st, nil)
	if err != nil {
		return err
	}
	defer events.Close()

	return fn(ctx, &session{cfg: cfg, logger: logger, store: st, service: svc})
}
