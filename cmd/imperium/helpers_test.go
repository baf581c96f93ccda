// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cnnetwork/imperium/internal/account/accounttest"
	"github.com/cnnetwork/imperium/internal/observability"
	"github.com/cnnetwork/imperium/internal/store"
)

var errNoDatabase = errors.New("no database in tests")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePool struct {
	mu      sync.Mutex
	pingErr error
	closed  bool
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) { return nil, errNoDatabase }

func (p *fakePool) Ping(context.Context) error { return p.pingErr }

func (p *fakePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeMigrator struct {
	mu     sync.Mutex
	calls  []string
	status store.Status
	err    error
	forced int
	steps  int
}

func (m *fakeMigrator) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.err
}

func (m *fakeMigrator) Up() error   { return m.record("up") }
func (m *fakeMigrator) Down() error { return m.record("down") }

func (m *fakeMigrator) Steps(n int) error {
	m.steps = n
	return m.record("steps")
}

func (m *fakeMigrator) Force(version int) error {
	m.forced = version
	return m.record("force")
}

func (m *fakeMigrator) Status() (store.Status, error) {
	return m.status, m.record("status")
}

func (m *fakeMigrator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "close")
	return nil
}

func (m *fakeMigrator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type fakeObservability struct {
	mu       sync.Mutex
	addr     string
	created  bool
	started  bool
	stopped  bool
	startErr error
	errCh    chan error
	metrics  *observability.Metrics
}

func newFakeObservability(addr string) *fakeObservability {
	return &fakeObservability{
		addr:    addr,
		errCh:   make(chan error, 1),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
}

func (o *fakeObservability) create(addr string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.addr = addr
	o.created = true
}

func (o *fakeObservability) wasCreated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.created
}

func (o *fakeObservability) Start() (<-chan error, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.startErr != nil {
		return nil, o.startErr
	}
	o.started = true
	return o.errCh, nil
}

func (o *fakeObservability) Stop(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	return nil
}

func (o *fakeObservability) Addr() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.addr
}

func (o *fakeObservability) Metrics() *observability.Metrics { return o.metrics }

func (o *fakeObservability) state() (started, stopped bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started, o.stopped
}

// testEnv wires the commands to in-memory fakes.
type testEnv struct {
	pool     *fakePool
	store    *accounttest.MemoryStore
	migrator *fakeMigrator
	obs      *fakeObservability
	urls     []string
	deps     *Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	// Keep a developer's own config.yaml out of the tests.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	env := &testEnv{
		pool:     &fakePool{},
		store:    accounttest.NewMemoryStore(),
		migrator: &fakeMigrator{},
		obs:      newFakeObservability(""),
	}
	env.deps = &Deps{
		PoolFactory: func(context.Context, store.PoolConfig, *slog.Logger) (Pool, error) {
			return env.pool, nil
		},
		StoreFactory: func(Pool) AccountStore { return env.store },
		MigratorFactory: func(url string) (Migrator, error) {
			env.urls = append(env.urls, url)
			return env.migrator, nil
		},
		ObservabilityServerFactory: func(addr string, _ observability.ReadinessCheck, _ *slog.Logger) ObservabilityServer {
			env.obs.create(addr)
			return env.obs
		},
	}
	return env
}

// run executes the root command with args and returns everything it printed.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runContext(context.Background(), t, args...)
}

// runInput runs the command with input as stdin.
func (e *testEnv) runInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	return e.execute(context.Background(), t, input, args)
}

func (e *testEnv) runContext(ctx context.Context, t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.execute(ctx, t, "", args)
}

func (e *testEnv) execute(ctx context.Context, t *testing.T, input string, args []string) (string, error) {
	t.Helper()
	configFile = ""

	cmd := newRootCmd(e.deps)
	buf := new(bytes.Buffer)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}
