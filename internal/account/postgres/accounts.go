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
	"github.com/cnnetwork/imperium/internal/hash"
)

const accountColumns = `a.id, a.username, a.discord, a.games, a.playtime, a.creation, a.legacy, a.rank`

func (t *tx) UsernameExists(ctx context.Context, username string) (bool, error) {
	return t.exists(ctx, "STORE_ACCOUNT_QUERY_FAILED",
		`SELECT EXISTS (SELECT 1 FROM account WHERE username = $1)`, username)
}

func (t *tx) AccountExists(ctx context.Context, id int64) (bool, error) {
	return t.exists(ctx, "STORE_ACCOUNT_QUERY_FAILED",
		`SELECT EXISTS (SELECT 1 FROM account WHERE id = $1)`, id)
}

func (t *tx) AccountByUsername(ctx context.Context, username string) (account.Account, error) {
	return t.queryAccount(ctx, "get account by username",
		`SELECT `+accountColumns+` FROM account a WHERE a.username = $1`, username)
}

func (t *tx) AccountByID(ctx context.Context, id int64) (account.Account, error) {
	return t.queryAccount(ctx, "get account by id",
		`SELECT `+accountColumns+` FROM account a WHERE a.id = $1`, id)
}

func (t *tx) AccountByDiscord(ctx context.Context, discord int64) (account.Account, error) {
	return t.queryAccount(ctx, "get account by discord",
		`SELECT `+accountColumns+` FROM account a WHERE a.discord = $1`, discord)
}

func (t *tx) AccountBySession(ctx context.Context, fingerprint []byte, now time.Time) (account.Account, error) {
	return t.queryAccount(ctx, "get account by session", `
		SELECT `+accountColumns+`
		FROM account a
		JOIN account_session s ON s.account_id = a.id
		WHERE s.hash = $1 AND s.expiration > $2
	`, fingerprint, now)
}

func (t *tx) queryAccount(ctx context.Context, operation, query string, args ...any) (account.Account, error) {
	var (
		a        account.Account
		playtime int64
		rank     string
	)
	err := t.tx.QueryRow(ctx, query, args...).Scan(
		&a.ID, &a.Username, &a.Discord, &a.Games, &playtime, &a.Creation, &a.Legacy, &rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Account{}, account.ErrNotFound
	}
	if err != nil {
		return account.Account{}, oops.Code("STORE_ACCOUNT_QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	a.Playtime = time.Duration(playtime)
	if a.Rank, err = account.ParseRank(rank); err != nil {
		return account.Account{}, oops.Code("STORE_CORRUPT_ROW").With("account_id", a.ID).Wrap(err)
	}
	return a, nil
}

func (t *tx) CredentialsByUsername(ctx context.Context, username string) (account.Credentials, error) {
	return t.queryCredentials(ctx, "get credentials by username", `
		SELECT id, password_hash, password_salt, password_params
		FROM account
		WHERE username = $1
	`, username)
}

func (t *tx) CredentialsBySession(ctx context.Context, fingerprint []byte, now time.Time) (account.Credentials, error) {
	return t.queryCredentials(ctx, "get credentials by session", `
		SELECT a.id, a.password_hash, a.password_salt, a.password_params
		FROM account a
		JOIN account_session s ON s.account_id = a.id
		WHERE s.hash = $1 AND s.expiration > $2
	`, fingerprint, now)
}

func (t *tx) queryCredentials(ctx context.Context, operation, query string, args ...any) (account.Credentials, error) {
	var (
		c      account.Credentials
		params string
	)
	err := t.tx.QueryRow(ctx, query, args...).Scan(&c.AccountID, &c.Password.Digest, &c.Password.Salt, &params)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Credentials{}, account.ErrNotFound
	}
	if err != nil {
		return account.Credentials{}, oops.Code("STORE_ACCOUNT_QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	if c.Password.Params, err = hash.ParseParams(params); err != nil {
		return account.Credentials{}, oops.Code("STORE_CORRUPT_ROW").With("account_id", c.AccountID).Wrap(err)
	}
	return c, nil
}

func (t *tx) InsertAccount(ctx context.Context, a account.NewAccount) (int64, error) {
	if a.Password.Params == nil {
		return 0, oops.Code("STORE_INVALID_ARGUMENT").Errorf("password params are required")
	}
	creation := a.Creation
	if creation.IsZero() {
		creation = time.Now()
	}
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO account (username, password_hash, password_salt, password_params, games, playtime, legacy, rank, creation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		a.Username,
		a.Password.Digest,
		a.Password.Salt,
		a.Password.Params.String(),
		a.Games,
		int64(a.Playtime),
		a.Legacy,
		a.Rank.String(),
		creation,
	).Scan(&id)
	if err != nil {
		return 0, mapError(oops.Code("STORE_ACCOUNT_INSERT_FAILED").With("username", a.Username), err)
	}
	return id, nil
}

func (t *tx) UpdatePassword(ctx context.Context, id int64, password hash.Hash) error {
	if password.Params == nil {
		return oops.Code("STORE_INVALID_ARGUMENT").Errorf("password params are required")
	}
	n, err := t.execAffected(ctx, oops.Code("STORE_ACCOUNT_UPDATE_FAILED").With("account_id", id), `
		UPDATE account SET password_hash = $2, password_salt = $3, password_params = $4 WHERE id = $1
	`, id, password.Digest, password.Salt, password.Params.String())
	if err != nil {
		return err
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (t *tx) UpdateDiscord(ctx context.Context, id, discord int64) (bool, error) {
	n, err := t.execAffected(ctx, oops.Code("STORE_ACCOUNT_UPDATE_FAILED").With("account_id", id),
		`UPDATE account SET discord = $2 WHERE id = $1`, id, discord)
	return n > 0, err
}

func (t *tx) IncrementGames(ctx context.Context, id int64) (bool, error) {
	n, err := t.execAffected(ctx, oops.Code("STORE_ACCOUNT_UPDATE_FAILED").With("account_id", id),
		`UPDATE account SET games = games + 1 WHERE id = $1`, id)
	return n > 0, err
}

func (t *tx) IncrementPlaytime(ctx context.Context, id int64, d time.Duration) (bool, error) {
	n, err := t.execAffected(ctx, oops.Code("STORE_ACCOUNT_UPDATE_FAILED").With("account_id", id),
		`UPDATE account SET playtime = playtime + $2 WHERE id = $1`, id, int64(d))
	return n > 0, err
}

func (t *tx) LockRank(ctx context.Context, id int64) (account.Rank, error) {
	var rank string
	err := t.tx.QueryRow(ctx, `SELECT rank FROM account WHERE id = $1 FOR UPDATE`, id).Scan(&rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.RankEveryone, account.ErrNotFound
	}
	if err != nil {
		return account.RankEveryone, oops.Code("STORE_ACCOUNT_QUERY_FAILED").With("operation", "lock rank").Wrap(err)
	}
	r, err := account.ParseRank(rank)
	if err != nil {
		return account.RankEveryone, oops.Code("STORE_CORRUPT_ROW").With("account_id", id).Wrap(err)
	}
	return r, nil
}

func (t *tx) UpdateRank(ctx context.Context, id int64, rank account.Rank) error {
	n, err := t.execAffected(ctx, oops.Code("STORE_ACCOUNT_UPDATE_FAILED").With("account_id", id),
		`UPDATE account SET rank = $2 WHERE id = $1`, id, rank.String())
	if err != nil {
		return err
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}
