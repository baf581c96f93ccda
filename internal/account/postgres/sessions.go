// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/cnnetwork/imperium/internal/account"
)

func (t *tx) SessionExists(ctx context.Context, fingerprint []byte) (bool, error) {
	return t.exists(ctx, "STORE_SESSION_QUERY_FAILED",
		`SELECT EXISTS (SELECT 1 FROM account_session WHERE hash = $1)`, fingerprint)
}

func (t *tx) ActiveSessionExists(ctx context.Context, fingerprint []byte, now time.Time) (bool, error) {
	return t.exists(ctx, "STORE_SESSION_QUERY_FAILED",
		`SELECT EXISTS (SELECT 1 FROM account_session WHERE hash = $1 AND expiration > $2)`, fingerprint, now)
}

func (t *tx) InsertSession(ctx context.Context, session account.Session) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO account_session (account_id, hash, expiration)
		VALUES ($1, $2, $3)
	`, session.AccountID, session.Fingerprint, session.Expiration)
	if err != nil {
		return mapError(oops.Code("STORE_SESSION_INSERT_FAILED").With("account_id", session.AccountID), err)
	}
	return nil
}

func (t *tx) DeleteExpiredSession(ctx context.Context, fingerprint []byte, now time.Time) error {
	_, err := t.execAffected(ctx, oops.Code("STORE_SESSION_DELETE_FAILED"),
		`DELETE FROM account_session WHERE hash = $1 AND expiration <= $2`, fingerprint, now)
	return err
}

func (t *tx) ExtendSession(ctx context.Context, fingerprint []byte, expiration time.Time) (bool, error) {
	n, err := t.execAffected(ctx, oops.Code("STORE_SESSION_UPDATE_FAILED"),
		`UPDATE account_session SET expiration = $2 WHERE hash = $1`, fingerprint, expiration)
	return n > 0, err
}

func (t *tx) SessionOwner(ctx context.Context, fingerprint []byte) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT account_id FROM account_session WHERE hash = $1`, fingerprint).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, account.ErrNotFound
	}
	if err != nil {
		return 0, oops.Code("STORE_SESSION_QUERY_FAILED").Wrap(err)
	}
	return id, nil
}

func (t *tx) DeleteSession(ctx context.Context, fingerprint []byte) (bool, error) {
	n, err := t.execAffected(ctx, oops.Code("STORE_SESSION_DELETE_FAILED"),
		`DELETE FROM account_session WHERE hash = $1`, fingerprint)
	return n > 0, err
}

func (t *tx) DeleteAccountSessions(ctx context.Context, id int64) (int64, error) {
	return t.execAffected(ctx, oops.Code("STORE_SESSION_DELETE_FAILED").With("account_id", id),
		`DELETE FROM account_session WHERE account_id = $1`, id)
}

func (t *tx) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return t.execAffected(ctx, oops.Code("STORE_SESSION_DELETE_FAILED"),
		`DELETE FROM account_session WHERE expiration <= $1`, now)
}
