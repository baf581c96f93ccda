// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package hash

import (
	"context"
	"crypto/rand"
	"io"
	"runtime"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// ErrLegacyReadOnly is returned when asked to create a hash with legacy params.
var ErrLegacyReadOnly = oops.Code("HASH_LEGACY_READ_ONLY").Errorf("legacy parameters can only be verified")

// Observer receives the duration of every derivation.
type Observer func(algorithm Algorithm, elapsed time.Duration)

// Engine creates and verifies hashes. Derivations with a salt (argon2id,
// PBKDF2) are bounded by a weighted semaphore so password-grade hashing cannot
// exhaust memory or starve the scheduler under load.
type Engine struct {
	sem     *semaphore.Weighted
	random  io.Reader
	observe Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds the number of concurrent salted derivations.
func WithConcurrency(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithObserver registers a duration observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observe = o }
}

// WithRandom overrides the salt source.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) { e.random = r }
}

// NewEngine creates an Engine. By default concurrency is GOMAXPROCS.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		sem:    semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create hashes secret with a fresh random salt of params' salt length.
func (e *Engine) Create(ctx context.Context, secret []byte, params Params) (Hash, error) {
	if err := creatable(params); err != nil {
		return Hash{}, err
	}
	salt := make([]byte, params.saltLength())
	if len(salt) > 0 {
		if _, err := io.ReadFull(e.random, salt); err != nil {
			return Hash{}, oops.Code("HASH_SALT_FAILED").With("params", params.String()).Wrap(err)
		}
	}
	return e.CreateWithSalt(ctx, secret, salt, params)
}

// CreateWithSalt hashes secret with a caller supplied salt. It is used for
// deterministic derivations such as session fingerprints.
func (e *Engine) CreateWithSalt(ctx context.Context, secret, salt []byte, params Params) (Hash, error) {
	if err := creatable(params); err != nil {
		return Hash{}, err
	}
	digest, err := e.derive(ctx, secret, salt, params)
	if err != nil {
		return Hash{}, err
	}
	return Hash{Digest: digest, Salt: salt, Params: params}, nil
}

// Verify reports whether secret hashes to h. A malformed or mismatching hash
// is a verification failure, never an error; errors are returned only when ctx
// ends while waiting for a derivation slot.
func (e *Engine) Verify(ctx context.Context, secret []byte, h Hash) (bool, error) {
	if h.Params == nil || len(h.Digest) == 0 {
		return false, nil
	}
	computed, err := e.derive(ctx, secret, h.Salt, h.Params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, oops.Code("HASH_CANCELED").Wrap(ctxErr)
		}
		return false, nil
	}
	return constantTimeEqual(computed, h.Digest), nil
}

func (e *Engine) derive(ctx context.Context, secret, salt []byte, params Params) ([]byte, error) {
	if params.Algorithm() != AlgorithmSHA {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, oops.Code("HASH_CANCELED").With("params", params.String()).Wrap(err)
		}
		defer e.sem.Release(1)
	}
	start := time.Now()
	digest, err := params.derive(secret, salt)
	if err != nil {
		return nil, err
	}
	if e.observe != nil {
		e.observe(params.Algorithm(), time.Since(start))
	}
	return digest, nil
}

func creatable(params Params) error {
	if params == nil {
		return oops.Code("HASH_INVALID_PARAMS").Errorf("params are required")
	}
	if params.Algorithm() == AlgorithmPBKDF2 {
		return ErrLegacyReadOnly
	}
	return nil
}
