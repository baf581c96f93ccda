// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

// Package accounttest provides in-memory fakes of the account package's
// collaborators for tests.
package accounttest

import (
	"bytes"
	"context"
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"

	"github.com/cnnetwork/imperium/internal/account"
	"github.com/cnnetwork/imperium/internal/hash"
)

var (
	_ account.Store = (*MemoryStore)(nil)
	_ account.Tx    = (*memoryTx)(nil)
)

type accountRow struct {
	account  account.Account
	password hash.Hash
}

type achievementKey struct {
	account     int64
	achievement account.Achievement
}

type state struct {
	nextID       int64
	nextLegacyID int64
	accounts     map[int64]accountRow
	sessions     map[string]account.Session
	achievements map[achievementKey]account.Progression
	legacy       map[int64]account.LegacyAccount
}

func newState() *state {
	return &state{
		nextID:       1,
		nextLegacyID: 1,
		accounts:     make(map[int64]accountRow),
		sessions:     make(map[string]account.Session),
		achievements: make(map[achievementKey]account.Progression),
		legacy:       make(map[int64]account.LegacyAccount),
	}
}

// clone copies everything a transaction may mutate. Values are treated as
// immutable once stored, so a shallow copy of each map is enough.
func (s *state) clone() *state {
	return &state{
		nextID:       s.nextID,
		nextLegacyID: s.nextLegacyID,
		accounts:     maps.Clone(s.accounts),
		sessions:     maps.Clone(s.sessions),
		achievements: maps.Clone(s.achievements),
		legacy:       maps.Clone(s.legacy),
	}
}

// MemoryStore is an account.Store kept in memory. Transactions are
// serialized and run against a copy of the state that replaces it only when
// the transaction succeeds, so a failing unit of work leaves no trace.
type MemoryStore struct {
	mu     sync.Mutex
	state  *state
	faults map[string]error
	calls  map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state:  newState(),
		faults: make(map[string]error),
		calls:  make(map[string]int),
	}
}

// InTx implements account.Store.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx account.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

// InjectFault makes every later call to the named Tx method fail with err.
// A nil err clears the fault.
func (m *MemoryStore) InjectFault(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, method)
		return
	}
	m.faults[method] = err
}

// Calls returns how often the named Tx method was invoked, committed or not.
func (m *MemoryStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// SeedLegacy stores a legacy account and returns its id.
func (m *MemoryStore) SeedLegacy(legacy account.LegacyAccount) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	legacy.ID = m.state.nextLegacyID
	m.state.nextLegacyID++
	legacy.UsernameHash = bytes.Clone(legacy.UsernameHash)
	legacy.Achievements = slices.Clone(legacy.Achievements)
	m.state.legacy[legacy.ID] = legacy
	return legacy.ID
}

// ImportLegacy mirrors the PostgreSQL bulk import: accounts whose username
// hash is already present are skipped.
func (m *MemoryStore) ImportLegacy(ctx context.Context, accounts []account.LegacyAccount) (int, error) {
	imported := 0
	err := m.InTx(ctx, func(at account.Tx) error {
		tx := at.(*memoryTx)
		for _, legacy := range accounts {
			if _, exists := tx.legacyByHash(legacy.UsernameHash); exists {
				continue
			}
			legacy.ID = tx.state.nextLegacyID
			tx.state.nextLegacyID++
			legacy.UsernameHash = bytes.Clone(legacy.UsernameHash)
			legacy.Achievements = slices.Clone(legacy.Achievements)
			if legacy.Password.Params == nil {
				legacy.Password.Params = hash.LegacyPasswordParams
			}
			tx.state.legacy[legacy.ID] = legacy
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

// SeedSession stores a session directly, bypassing the session manager.
func (m *MemoryStore) SeedSession(session account.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.Fingerprint = bytes.Clone(session.Fingerprint)
	m.state.sessions[string(session.Fingerprint)] = session
}

// Sessions returns the sessions of an account, expired ones included.
func (m *MemoryStore) Sessions(accountID int64) []account.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []account.Session
	for _, s := range m.state.sessions {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out
}

// LegacyCount returns the number of legacy accounts left.
func (m *MemoryStore) LegacyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.legacy)
}

// Password returns the stored password hash of an account.
func (m *MemoryStore) Password(accountID int64) (hash.Hash, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.state.accounts[accountID]
	return row.password, ok
}

type memoryTx struct {
	store *MemoryStore
	state *state
}

// enter records the call and returns the injected fault, if any. The store
// mutex is held by InTx for the whole transaction.
func (t *memoryTx) enter(method string) error {
	t.store.calls[method]++
	return t.store.faults[method]
}

// errUntextual mirrors Postgres rejecting invalid UTF-8 or NUL in a text
// parameter (SQLSTATE 22021).
var errUntextual = oops.Code("22021").Errorf("invalid byte sequence for encoding UTF8")

// text fails like a text column would for a value Postgres cannot hold.
func text(value string) error {
	if !utf8.ValidString(value) || strings.ContainsRune(value, 0) {
		return errUntextual
	}
	return nil
}

func (t *memoryTx) UsernameExists(_ context.Context, username string) (bool, error) {
	if err := t.enter("UsernameExists"); err != nil {
		return false, err
	}
	if err := text(username); err != nil {
		return false, err
	}
	_, ok := t.byUsername(username)
	return ok, nil
}

func (t *memoryTx) AccountExists(_ context.Context, id int64) (bool, error) {
	if err := t.enter("AccountExists"); err != nil {
		return false, err
	}
	_, ok := t.state.accounts[id]
	return ok, nil
}

func (t *memoryTx) AccountByUsername(_ context.Context, username string) (account.Account, error) {
	if err := t.enter("AccountByUsername"); err != nil {
		return account.Account{}, err
	}
	if err := text(username); err != nil {
		return account.Account{}, err
	}
	row, ok := t.byUsername(username)
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return snapshot(row), nil
}

func (t *memoryTx) AccountByID(_ context.Context, id int64) (account.Account, error) {
	if err := t.enter("AccountByID"); err != nil {
		return account.Account{}, err
	}
	row, ok := t.state.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return snapshot(row), nil
}

func (t *memoryTx) AccountByDiscord(_ context.Context, discord int64) (account.Account, error) {
	if err := t.enter("AccountByDiscord"); err != nil {
		return account.Account{}, err
	}
	for _, row := range t.state.accounts {
		if row.account.Discord != nil && *row.account.Discord == discord {
			return snapshot(row), nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (t *memoryTx) AccountBySession(_ context.Context, fingerprint []byte, now time.Time) (account.Account, error) {
	if err := t.enter("AccountBySession"); err != nil {
		return account.Account{}, err
	}
	row, ok := t.bySession(fingerprint, now)
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return snapshot(row), nil
}

func (t *memoryTx) CredentialsByUsername(_ context.Context, username string) (account.Credentials, error) {
	if err := t.enter("CredentialsByUsername"); err != nil {
		return account.Credentials{}, err
	}
	if err := text(username); err != nil {
		return account.Credentials{}, err
	}
	row, ok := t.byUsername(username)
	if !ok {
		return account.Credentials{}, account.ErrNotFound
	}
	return account.Credentials{AccountID: row.account.ID, Password: row.password}, nil
}

func (t *memoryTx) CredentialsBySession(_ context.Context, fingerprint []byte, now time.Time) (account.Credentials, error) {
	if err := t.enter("CredentialsBySession"); err != nil {
		return account.Credentials{}, err
	}
	row, ok := t.bySession(fingerprint, now)
	if !ok {
		return account.Credentials{}, account.ErrNotFound
	}
	return account.Credentials{AccountID: row.account.ID, Password: row.password}, nil
}

func (t *memoryTx) InsertAccount(_ context.Context, a account.NewAccount) (int64, error) {
	if err := t.enter("InsertAccount"); err != nil {
		return 0, err
	}
	if err := text(a.Username); err != nil {
		return 0, err
	}
	if _, taken := t.byUsername(a.Username); taken {
		return 0, account.ErrConflict
	}
	id := t.state.nextID
	t.state.nextID++
	t.state.accounts[id] = accountRow{
		account: account.Account{
			ID:       id,
			Username: a.Username,
			Games:    a.Games,
			Playtime: a.Playtime,
			Creation: a.Creation,
			Legacy:   a.Legacy,
			Rank:     a.Rank,
		},
		password: a.Password,
	}
	return id, nil
}

func (t *memoryTx) UpdatePassword(_ context.Context, id int64, password hash.Hash) error {
	if err := t.enter("UpdatePassword"); err != nil {
		return err
	}
	row, ok := t.state.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	row.password = password
	t.state.accounts[id] = row
	return nil
}

func (t *memoryTx) UpdateDiscord(_ context.Context, id, discord int64) (bool, error) {
	if err := t.enter("UpdateDiscord"); err != nil {
		return false, err
	}
	row, ok := t.state.accounts[id]
	if !ok {
		return false, nil
	}
	for other, r := range t.state.accounts {
		if other != id && r.account.Discord != nil && *r.account.Discord == discord {
			return false, account.ErrConflict
		}
	}
	row.account.Discord = &discord
	t.state.accounts[id] = row
	return true, nil
}

func (t *memoryTx) IncrementGames(_ context.Context, id int64) (bool, error) {
	if err := t.enter("IncrementGames"); err != nil {
		return false, err
	}
	row, ok := t.state.accounts[id]
	if !ok {
		return false, nil
	}
	row.account.Games++
	t.state.accounts[id] = row
	return true, nil
}

func (t *memoryTx) IncrementPlaytime(_ context.Context, id int64, d time.Duration) (bool, error) {
	if err := t.enter("IncrementPlaytime"); err != nil {
		return false, err
	}
	row, ok := t.state.accounts[id]
	if !ok {
		return false, nil
	}
	row.account.Playtime += d
	t.state.accounts[id] = row
	return true, nil
}

func (t *memoryTx) LockRank(_ context.Context, id int64) (account.Rank, error) {
	if err := t.enter("LockRank"); err != nil {
		return account.RankEveryone, err
	}
	row, ok := t.state.accounts[id]
	if !ok {
		return account.RankEveryone, account.ErrNotFound
	}
	return row.account.Rank, nil
}

func (t *memoryTx) UpdateRank(_ context.Context, id int64, rank account.Rank) error {
	if err := t.enter("UpdateRank"); err != nil {
		return err
	}
	row, ok := t.state.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	row.account.Rank = rank
	t.state.accounts[id] = row
	return nil
}

func (t *memoryTx) LegacyExists(_ context.Context, usernameHash []byte) (bool, error) {
	if err := t.enter("LegacyExists"); err != nil {
		return false, err
	}
	_, ok := t.legacyByHash(usernameHash)
	return ok, nil
}

func (t *memoryTx) LegacyByUsernameHash(_ context.Context, usernameHash []byte) (account.LegacyAccount, error) {
	if err := t.enter("LegacyByUsernameHash"); err != nil {
		return account.LegacyAccount{}, err
	}
	legacy, ok := t.legacyByHash(usernameHash)
	if !ok {
		return account.LegacyAccount{}, account.ErrNotFound
	}
	legacy.Achievements = slices.Clone(legacy.Achievements)
	return legacy, nil
}

func (t *memoryTx) DeleteLegacy(_ context.Context, id int64) error {
	if err := t.enter("DeleteLegacy"); err != nil {
		return err
	}
	delete(t.state.legacy, id)
	return nil
}

func (t *memoryTx) Achievement(_ context.Context, id int64, achievement account.Achievement) (account.Progression, error) {
	if err := t.enter("Achievement"); err != nil {
		return account.Progression{}, err
	}
	p, ok := t.state.achievements[achievementKey{id, achievement}]
	if !ok {
		return account.ZeroProgression(), nil
	}
	return cloneProgression(p), nil
}

func (t *memoryTx) Achievements(_ context.Context, id int64) (map[account.Achievement]account.Progression, error) {
	if err := t.enter("Achievements"); err != nil {
		return nil, err
	}
	out := make(map[account.Achievement]account.Progression)
	for key, p := range t.state.achievements {
		if key.account == id {
			out[key.achievement] = cloneProgression(p)
		}
	}
	return out, nil
}

func (t *memoryTx) InsertAchievements(_ context.Context, id int64, achievements []account.Achievement, completed bool) error {
	if err := t.enter("InsertAchievements"); err != nil {
		return err
	}
	if _, ok := t.state.accounts[id]; !ok {
		return account.ErrNotFound
	}
	for _, a := range achievements {
		key := achievementKey{id, a}
		if _, exists := t.state.achievements[key]; exists {
			return account.ErrConflict
		}
		t.state.achievements[key] = account.Progression{Data: account.ZeroProgression().Data, Completed: completed}
	}
	return nil
}

func (t *memoryTx) UpsertAchievementData(_ context.Context, id int64, achievement account.Achievement, data json.RawMessage) error {
	if err := t.enter("UpsertAchievementData"); err != nil {
		return err
	}
	key := achievementKey{id, achievement}
	p, ok := t.state.achievements[key]
	if !ok {
		p = account.ZeroProgression()
	}
	p.Data = bytes.Clone(data)
	t.state.achievements[key] = p
	return nil
}

func (t *memoryTx) CompleteAchievement(_ context.Context, id int64, achievement account.Achievement) (bool, error) {
	if err := t.enter("CompleteAchievement"); err != nil {
		return false, err
	}
	key := achievementKey{id, achievement}
	p, ok := t.state.achievements[key]
	if !ok {
		p = account.ZeroProgression()
	}
	if p.Completed {
		return false, nil
	}
	p.Completed = true
	t.state.achievements[key] = p
	return true, nil
}

func (t *memoryTx) ResetAchievement(_ context.Context, id int64, achievement account.Achievement) error {
	if err := t.enter("ResetAchievement"); err != nil {
		return err
	}
	key := achievementKey{id, achievement}
	p, ok := t.state.achievements[key]
	if !ok {
		p = account.ZeroProgression()
	}
	p.Completed = false
	t.state.achievements[key] = p
	return nil
}

func (t *memoryTx) SessionExists(_ context.Context, fingerprint []byte) (bool, error) {
	if err := t.enter("SessionExists"); err != nil {
		return false, err
	}
	_, ok := t.state.sessions[string(fingerprint)]
	return ok, nil
}

func (t *memoryTx) ActiveSessionExists(_ context.Context, fingerprint []byte, now time.Time) (bool, error) {
	if err := t.enter("ActiveSessionExists"); err != nil {
		return false, err
	}
	s, ok := t.state.sessions[string(fingerprint)]
	return ok && !s.Expired(now), nil
}

func (t *memoryTx) InsertSession(_ context.Context, session account.Session) error {
	if err := t.enter("InsertSession"); err != nil {
		return err
	}
	if _, ok := t.state.accounts[session.AccountID]; !ok {
		return account.ErrNotFound
	}
	if _, ok := t.state.sessions[string(session.Fingerprint)]; ok {
		return account.ErrConflict
	}
	session.Fingerprint = bytes.Clone(session.Fingerprint)
	t.state.sessions[string(session.Fingerprint)] = session
	return nil
}

func (t *memoryTx) DeleteExpiredSession(_ context.Context, fingerprint []byte, now time.Time) error {
	if err := t.enter("DeleteExpiredSession"); err != nil {
		return err
	}
	if s, ok := t.state.sessions[string(fingerprint)]; ok && s.Expired(now) {
		delete(t.state.sessions, string(fingerprint))
	}
	return nil
}

func (t *memoryTx) ExtendSession(_ context.Context, fingerprint []byte, expiration time.Time) (bool, error) {
	if err := t.enter("ExtendSession"); err != nil {
		return false, err
	}
	s, ok := t.state.sessions[string(fingerprint)]
	if !ok {
		return false, nil
	}
	s.Expiration = expiration
	t.state.sessions[string(fingerprint)] = s
	return true, nil
}

func (t *memoryTx) SessionOwner(_ context.Context, fingerprint []byte) (int64, error) {
	if err := t.enter("SessionOwner"); err != nil {
		return 0, err
	}
	s, ok := t.state.sessions[string(fingerprint)]
	if !ok {
		return 0, account.ErrNotFound
	}
	return s.AccountID, nil
}

func (t *memoryTx) DeleteSession(_ context.Context, fingerprint []byte) (bool, error) {
	if err := t.enter("DeleteSession"); err != nil {
		return false, err
	}
	_, ok := t.state.sessions[string(fingerprint)]
	delete(t.state.sessions, string(fingerprint))
	return ok, nil
}

func (t *memoryTx) DeleteAccountSessions(_ context.Context, id int64) (int64, error) {
	if err := t.enter("DeleteAccountSessions"); err != nil {
		return 0, err
	}
	var n int64
	for key, s := range t.state.sessions {
		if s.AccountID == id {
			delete(t.state.sessions, key)
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	if err := t.enter("DeleteExpiredSessions"); err != nil {
		return 0, err
	}
	var n int64
	for key, s := range t.state.sessions {
		if s.Expired(now) {
			delete(t.state.sessions, key)
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) byUsername(username string) (accountRow, bool) {
	for _, row := range t.state.accounts {
		if row.account.Username == username {
			return row, true
		}
	}
	return accountRow{}, false
}

func (t *memoryTx) bySession(fingerprint []byte, now time.Time) (accountRow, bool) {
	s, ok := t.state.sessions[string(fingerprint)]
	if !ok || s.Expired(now) {
		return accountRow{}, false
	}
	row, ok := t.state.accounts[s.AccountID]
	return row, ok
}

func (t *memoryTx) legacyByHash(usernameHash []byte) (account.LegacyAccount, bool) {
	for _, legacy := range t.state.legacy {
		if bytes.Equal(legacy.UsernameHash, usernameHash) {
			return legacy, true
		}
	}
	return account.LegacyAccount{}, false
}

func snapshot(row accountRow) account.Account {
	a := row.account
	if a.Discord != nil {
		d := *a.Discord
		a.Discord = &d
	}
	return a
}

func cloneProgression(p account.Progression) account.Progression {
	return account.Progression{Data: bytes.Clone(p.Data), Completed: p.Completed}
}
