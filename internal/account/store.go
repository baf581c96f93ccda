// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package account

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cnnetwork/imperium/internal/hash"
)

// Store runs units of work against persistent account state.
type Store interface {
	// InTx runs fn in a single transaction. The transaction commits when fn
	// returns nil and rolls back otherwise; fn's error is returned unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside a transaction.
// Lookups of a single row return ErrNotFound when it does not exist; writes
// that break a uniqueness constraint return ErrConflict. No business rules
// are applied here.
type Tx interface {
	AccountTx
	LegacyTx
	AchievementTx
	SessionTx
}

// AccountTx covers the account table.
type AccountTx interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
	AccountExists(ctx context.Context, id int64) (bool, error)
	AccountByUsername(ctx context.Context, username string) (Account, error)
	AccountByID(ctx context.Context, id int64) (Account, error)
	AccountByDiscord(ctx context.Context, discord int64) (Account, error)
	// AccountBySession joins through a session that expires after now.
	AccountBySession(ctx context.Context, fingerprint []byte, now time.Time) (Account, error)

	CredentialsByUsername(ctx context.Context, username string) (Credentials, error)
	// CredentialsBySession joins through a session that expires after now.
	CredentialsBySession(ctx context.Context, fingerprint []byte, now time.Time) (Credentials, error)

	InsertAccount(ctx context.Context, account NewAccount) (int64, error)
	UpdatePassword(ctx context.Context, id int64, password hash.Hash) error
	UpdateDiscord(ctx context.Context, id, discord int64) (bool, error)
	IncrementGames(ctx context.Context, id int64) (bool, error)
	IncrementPlaytime(ctx context.Context, id int64, d time.Duration) (bool, error)

	// LockRank reads the rank and holds the row until the transaction ends.
	LockRank(ctx context.Context, id int64) (Rank, error)
	UpdateRank(ctx context.Context, id int64, rank Rank) error
}

// LegacyTx covers imported legacy accounts.
type LegacyTx interface {
	LegacyExists(ctx context.Context, usernameHash []byte) (bool, error)
	// LegacyByUsernameHash loads the legacy account and its achievements.
	LegacyByUsernameHash(ctx context.Context, usernameHash []byte) (LegacyAccount, error)
	DeleteLegacy(ctx context.Context, id int64) error
}

// AchievementTx covers per-account achievement progression.
type AchievementTx interface {
	// Achievement returns ZeroProgression when no row exists.
	Achievement(ctx context.Context, id int64, achievement Achievement) (Progression, error)
	Achievements(ctx context.Context, id int64) (map[Achievement]Progression, error)
	InsertAchievements(ctx context.Context, id int64, achievements []Achievement, completed bool) error
	UpsertAchievementData(ctx context.Context, id int64, achievement Achievement, data json.RawMessage) error
	// CompleteAchievement marks the achievement completed and reports whether
	// this call performed the not-completed to completed transition.
	CompleteAchievement(ctx context.Context, id int64, achievement Achievement) (bool, error)
	ResetAchievement(ctx context.Context, id int64, achievement Achievement) error
}

// SessionTx covers sessions.
type SessionTx interface {
	SessionExists(ctx context.Context, fingerprint []byte) (bool, error)
	ActiveSessionExists(ctx context.Context, fingerprint []byte, now time.Time) (bool, error)
	InsertSession(ctx context.Context, session Session) error
	// DeleteExpiredSession removes the session for fingerprint if it expired
	// at or before now.
	DeleteExpiredSession(ctx context.Context, fingerprint []byte, now time.Time) error
	ExtendSession(ctx context.Context, fingerprint []byte, expiration time.Time) (bool, error)
	SessionOwner(ctx context.Context, fingerprint []byte) (int64, error)
	DeleteSession(ctx context.Context, fingerprint []byte) (bool, error)
	DeleteAccountSessions(ctx context.Context, id int64) (int64, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Hasher creates and verifies hashes. *hash.Engine implements it.
type Hasher interface {
	Create(ctx context.Context, secret []byte, params hash.Params) (hash.Hash, error)
	CreateWithSalt(ctx context.Context, secret, salt []byte, params hash.Params) (hash.Hash, error)
	Verify(ctx context.Context, secret []byte, h hash.Hash) (bool, error)
}
