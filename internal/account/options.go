// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package account

import (
	"log/slog"
	"time"

	"github.com/cnnetwork/imperium/internal/hash"
)

// Recorder counts operation outcomes. observability.Metrics implements it.
type Recorder interface {
	RecordOperation(operation, result string)
}

type options struct {
	logger         *slog.Logger
	clock          func() time.Time
	passwordParams hash.Params
	sessionParams  hash.Params
	sessionTTL     time.Duration
	recorder       Recorder
}

// Option configures a Service or SessionManager.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:         slog.Default(),
		clock:          time.Now,
		passwordParams: hash.PasswordParams,
		sessionParams:  hash.SessionParams,
		sessionTTL:     SessionTTL,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithPasswordParams sets the parameters new password hashes are created
// with. Existing hashes keep verifying with the params stored next to them.
func WithPasswordParams(p hash.Params) Option {
	return func(o *options) { o.passwordParams = p }
}

// WithSessionParams sets the fingerprint derivation parameters. Changing
// them invalidates every existing session.
func WithSessionParams(p hash.Params) Option {
	return func(o *options) { o.sessionParams = p }
}

// WithSessionTTL overrides SessionTTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.sessionTTL = ttl
		}
	}
}

// WithRecorder registers an outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}
