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

func (t *tx) LegacyExists(ctx context.Context, usernameHash []byte) (bool, error) {
	return t.exists(ctx, "STORE_LEGACY_QUERY_FAILED",
		`SELECT EXISTS (SELECT 1 FROM legacy_account WHERE username_hash = $1)`, usernameHash)
}

// LegacyByUsernameHash locks the legacy row so concurrent migrations of the
// same account serialize; the loser sees no row once the winner commits.
func (t *tx) LegacyByUsernameHash(ctx context.Context, usernameHash []byte) (account.LegacyAccount, error) {
	var (
		legacy   account.LegacyAccount
		playtime int64
		rank     string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, password_hash, password_salt, games, playtime, rank
		FROM legacy_account
		WHERE username_hash = $1
		FOR UPDATE
	`, usernameHash).Scan(&legacy.ID, &legacy.Password.Digest, &legacy.Password.Salt, &legacy.Games, &playtime, &rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.LegacyAccount{}, account.ErrNotFound
	}
	if err != nil {
		return account.LegacyAccount{}, oops.Code("STORE_LEGACY_QUERY_FAILED").Wrap(err)
	}
	legacy.UsernameHash = usernameHash
	legacy.Password.Params = hash.LegacyPasswordParams
	legacy.Playtime = time.Duration(playtime)
	if legacy.Rank, err = account.ParseRank(rank); err != nil {
		return account.LegacyAccount{}, oops.Code("STORE_CORRUPT_ROW").With("legacy_id", legacy.ID).Wrap(err)
	}

	rows, err := t.tx.Query(ctx, `
		SELECT achievement FROM legacy_account_achievement
		WHERE legacy_account_id = $1
		ORDER BY achievement
	`, legacy.ID)
	if err != nil {
		return account.LegacyAccount{}, oops.Code("STORE_LEGACY_QUERY_FAILED").With("legacy_id", legacy.ID).Wrap(err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return account.LegacyAccount{}, oops.Code("STORE_LEGACY_QUERY_FAILED").With("legacy_id", legacy.ID).Wrap(err)
	}
	for _, name := range names {
		a, err := account.ParseAchievement(name)
		if err != nil {
			return account.LegacyAccount{}, oops.Code("STORE_CORRUPT_ROW").With("legacy_id", legacy.ID).Wrap(err)
		}
		legacy.Achievements = append(legacy.Achievements, a)
	}
	return legacy, nil
}

func (t *tx) DeleteLegacy(ctx context.Context, id int64) error {
	n, err := t.execAffected(ctx, oops.Code("STORE_LEGACY_DELETE_FAILED").With("legacy_id", id),
		`DELETE FROM legacy_account WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

// ImportLegacy bulk loads legacy accounts in one transaction and returns how
// many were inserted. Rows whose username hash already exists are skipped.
// Legacy passwords must use hash.LegacyPasswordParams.
func (s *Store) ImportLegacy(ctx context.Context, accounts []account.LegacyAccount) (int, error) {
	var imported int
	err := s.InTx(ctx, func(at account.Tx) error {
		ptx := at.(*tx).tx
		for _, legacy := range accounts {
			if legacy.Password.Params != nil && legacy.Password.Params != hash.LegacyPasswordParams {
				return oops.Code("STORE_INVALID_ARGUMENT").
					With("params", legacy.Password.Params.String()).
					Errorf("legacy passwords must use %s", hash.LegacyPasswordParams)
			}
			var id int64
			err := ptx.QueryRow(ctx, `
				INSERT INTO legacy_account (username_hash, password_hash, password_salt, games, playtime, rank)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (username_hash) DO NOTHING
				RETURNING id
			`,
				legacy.UsernameHash,
				legacy.Password.Digest,
				legacy.Password.Salt,
				legacy.Games,
				int64(legacy.Playtime),
				legacy.Rank.String(),
			).Scan(&id)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return mapError(oops.Code("STORE_LEGACY_IMPORT_FAILED"), err)
			}

			if len(legacy.Achievements) > 0 {
				rows := make([][]any, 0, len(legacy.Achievements))
				for _, a := range legacy.Achievements {
					rows = append(rows, []any{id, string(a)})
				}
				if _, err := ptx.CopyFrom(ctx,
					pgx.Identifier{"legacy_account_achievement"},
					[]string{"legacy_account_id", "achievement"},
					pgx.CopyFromRows(rows),
				); err != nil {
					return mapError(oops.Code("STORE_LEGACY_IMPORT_FAILED").With("legacy_id", id), err)
				}
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}
