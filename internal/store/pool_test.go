// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnnetwork/imperium/pkg/errutil"
)

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWaitReady(t *testing.T) {
	ctx := context.Background()
	cfg := PoolConfig{ConnectRetries: 3, RetryBase: time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		p := &flakyPinger{failures: 2}
		require.NoError(t, waitReady(ctx, p, cfg, discardLogger()))
		assert.Equal(t, 3, p.calls)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		p := &flakyPinger{failures: 10}
		err := waitReady(ctx, p, cfg, discardLogger())
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "STORE_CONNECT_FAILED")
		assert.Equal(t, 4, p.calls, "one attempt plus three retries")
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		p := &flakyPinger{failures: 10}
		err := waitReady(cctx, p, PoolConfig{ConnectRetries: 100, RetryBase: time.Hour}, discardLogger())
		require.Error(t, err)
	})
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), PoolConfig{URL: "::not a url::"}, discardLogger())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_CONFIG_INVALID")
}
