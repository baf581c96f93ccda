// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package account_test

import (
	"context"
	"crypto/sha256"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"

	"github.com/cnnetwork/imperium/internal/account"
	"github.com/cnnetwork/imperium/internal/account/accounttest"
	"github.com/cnnetwork/imperium/internal/hash"
)

// Cheap argon2id params so the suite does not spend seconds hashing.
var (
	testPasswordParams = hash.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, Length: 64, SaltLength: 16, Version: 0x13}
	testSessionParams  = hash.Argon2Params{Memory: 32, Iterations: 1, Parallelism: 1, Length: 32, SaltLength: 8, Version: 0x13}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordOperation(operation, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[operation+"/"+result]++
}

func (r *countingRecorder) Count(operation, result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[operation+"/"+result]
}

// testPolicy requires passwords of at least 8 characters and usernames
// without spaces.
var testPolicy = account.PolicyFuncs{
	Password: func(password string) []account.Requirement {
		if len(password) < 8 {
			return []account.Requirement{{Code: "length"}}
		}
		return nil
	},
	Username: func(username string) []account.Requirement {
		if strings.Contains(username, " ") {
			return []account.Requirement{{Code: "whitespace"}}
		}
		return nil
	},
}

type fixture struct {
	svc      *account.Service
	store    *accounttest.MemoryStore
	notifier *accounttest.RecordingNotifier
	clock    *fakeClock
	recorder *countingRecorder
}

// countingHasher counts Verify calls per algorithm.
type countingHasher struct {
	account.Hasher

	mu       sync.Mutex
	verified map[hash.Algorithm]int
}

func newCountingHasher() *countingHasher {
	return &countingHasher{Hasher: hash.NewEngine(), verified: make(map[hash.Algorithm]int)}
}

func (h *countingHasher) Verify(ctx context.Context, secret []byte, hh hash.Hash) (bool, error) {
	h.mu.Lock()
	h.verified[hh.Params.Algorithm()]++
	h.mu.Unlock()
	return h.Hasher.Verify(ctx, secret, hh)
}

func (h *countingHasher) Verified(alg hash.Algorithm) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verified[alg]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithHasher(t, hash.NewEngine())
}

func newFixtureWithHasher(t *testing.T, hasher account.Hasher) *fixture {
	t.Helper()
	f := &fixture{
		store:    accounttest.NewMemoryStore(),
		notifier: &accounttest.RecordingNotifier{},
		clock:    newFakeClock(),
		recorder: &countingRecorder{},
	}
	svc, err := account.NewService(f.store, hasher, testPolicy, f.notifier,
		account.WithClock(f.clock.Now),
		account.WithPasswordParams(testPasswordParams),
		account.WithSessionParams(testSessionParams),
		account.WithRecorder(f.recorder),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) register(t *testing.T, username, password string) account.Account {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.Register(ctx, username, password)
	require.NoError(t, err)
	require.Equal(t, account.Success, res)
	acc, found, err := f.svc.FindByUsername(ctx, username)
	require.NoError(t, err)
	require.True(t, found)
	return acc
}

func (f *fixture) login(t *testing.T, username, password string, id account.Identity) {
	t.Helper()
	res, err := f.svc.Login(context.Background(), username, password, id)
	require.NoError(t, err)
	require.Equal(t, account.Success, res)
}

// seedLegacy imports a legacy account whose password was hashed with the
// legacy PBKDF2 params.
func (f *fixture) seedLegacy(t *testing.T, username, password string, legacy account.LegacyAccount) {
	t.Helper()
	salt := []byte("0123456789abcdef")
	p := hash.LegacyPasswordParams
	digest := pbkdf2.Key([]byte(password), salt, p.Iterations, p.Length, sha256.New)
	sum := sha256.Sum256([]byte(strings.ToLower(username)))
	legacy.UsernameHash = sum[:]
	legacy.Password = hash.Hash{Digest: digest, Salt: salt, Params: p}
	f.store.SeedLegacy(legacy)
}

func identity(uuid, usid string) account.Identity {
	return account.Identity{UUID: uuid, USID: usid}
}
