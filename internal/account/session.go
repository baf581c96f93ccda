// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/cnnetwork/imperium/internal/hash"
)

// SessionTTL is how long a session lives after login or refresh.
const SessionTTL = 7 * 24 * time.Hour

// Session binds an account to a fingerprint until Expiration.
type Session struct {
	AccountID   int64
	Fingerprint []byte
	Expiration  time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.Expiration.After(now)
}

// SessionManager derives fingerprints and drives the session state machine:
// none to active on login, active to active on refresh, active to none on
// logout or expiry. It never opens transactions itself.
type SessionManager struct {
	hasher Hasher
	params hash.Params
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(hasher Hasher, opts ...Option) (*SessionManager, error) {
	if hasher == nil {
		return nil, oops.Code("ACCOUNT_INVALID_DEPENDENCY").Errorf("hasher is required")
	}
	o := applyOptions(opts)
	return &SessionManager{
		hasher: hasher,
		params: o.sessionParams,
		ttl:    o.sessionTTL,
		now:    o.clock,
		logger: o.logger,
	}, nil
}

// Fingerprint derives the session fingerprint of an identity: argon2id over
// the UUID salted with the USID bytes.
func (m *SessionManager) Fingerprint(ctx context.Context, id Identity) ([]byte, error) {
	if id.UUID == "" || id.USID == "" {
		return nil, oops.Code("SESSION_INVALID_IDENTITY").Errorf("identity requires uuid and usid")
	}
	h, err := m.hasher.CreateWithSalt(ctx, []byte(id.UUID), []byte(id.USID), m.params)
	if err != nil {
		return nil, oops.Code("SESSION_FINGERPRINT_FAILED").Wrap(err)
	}
	return h.Digest, nil
}

// Create opens a session for accountID. A leftover expired session for the
// same fingerprint is purged first so it cannot block a fresh login.
// A concurrent login racing on the same fingerprint surfaces as ErrConflict.
func (m *SessionManager) Create(ctx context.Context, tx SessionTx, accountID int64, fingerprint []byte) (Result, error) {
	now := m.now()
	if err := tx.DeleteExpiredSession(ctx, fingerprint, now); err != nil {
		return Result{}, oops.Code("SESSION_CREATE_FAILED").With("operation", "purge expired session").Wrap(err)
	}
	exists, err := tx.SessionExists(ctx, fingerprint)
	if err != nil {
		return Result{}, oops.Code("SESSION_CREATE_FAILED").With("operation", "check session").Wrap(err)
	}
	if exists {
		return AlreadyLogged, nil
	}
	session := Session{AccountID: accountID, Fingerprint: fingerprint, Expiration: now.Add(m.ttl)}
	if err := tx.InsertSession(ctx, session); err != nil {
		return Result{}, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("account_id", accountID).
			Wrap(err)
	}
	m.logger.DebugContext(ctx, "session created", "account_id", accountID, "expiration", session.Expiration)
	return Success, nil
}

// Refresh extends an active session by the TTL. An expired session is purged
// first, so refreshing after expiry yields NotFound.
func (m *SessionManager) Refresh(ctx context.Context, tx SessionTx, fingerprint []byte) (Result, error) {
	now := m.now()
	if err := tx.DeleteExpiredSession(ctx, fingerprint, now); err != nil {
		return Result{}, oops.Code("SESSION_REFRESH_FAILED").With("operation", "purge expired session").Wrap(err)
	}
	extended, err := tx.ExtendSession(ctx, fingerprint, now.Add(m.ttl))
	if err != nil {
		return Result{}, oops.Code("SESSION_REFRESH_FAILED").With("operation", "extend session").Wrap(err)
	}
	if !extended {
		return NotFound, nil
	}
	return Success, nil
}

// Logout deletes the session for fingerprint, or with all every session of
// the account owning it.
func (m *SessionManager) Logout(ctx context.Context, tx SessionTx, fingerprint []byte, all bool) (Result, error) {
	owner, err := tx.SessionOwner(ctx, fingerprint)
	if errors.Is(err, ErrNotFound) {
		return NotFound, nil
	}
	if err != nil {
		return Result{}, oops.Code("SESSION_LOGOUT_FAILED").With("operation", "find session owner").Wrap(err)
	}

	if all {
		n, err := tx.DeleteAccountSessions(ctx, owner)
		if err != nil {
			return Result{}, oops.Code("SESSION_LOGOUT_FAILED").
				With("operation", "delete account sessions").
				With("account_id", owner).
				Wrap(err)
		}
		m.logger.DebugContext(ctx, "logged out everywhere", "account_id", owner, "sessions", n)
		return Success, nil
	}

	if _, err := tx.DeleteSession(ctx, fingerprint); err != nil {
		return Result{}, oops.Code("SESSION_LOGOUT_FAILED").With("operation", "delete session").Wrap(err)
	}
	m.logger.DebugContext(ctx, "logged out", "account_id", owner)
	return Success, nil
}

// PurgeExpired deletes every expired session and returns how many.
func (m *SessionManager) PurgeExpired(ctx context.Context, tx SessionTx) (int64, error) {
	n, err := tx.DeleteExpiredSessions(ctx, m.now())
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}
