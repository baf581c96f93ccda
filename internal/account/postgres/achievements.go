// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/cnnetwork/imperium/internal/account"
)

func (t *tx) Achievement(ctx context.Context, id int64, achievement account.Achievement) (account.Progression, error) {
	var (
		data      string
		completed bool
	)
	err := t.tx.QueryRow(ctx, `
		SELECT data::text, completed FROM account_achievement
		WHERE account_id = $1 AND achievement = $2
	`, id, string(achievement)).Scan(&data, &completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.ZeroProgression(), nil
	}
	if err != nil {
		return account.Progression{}, oops.Code("STORE_ACHIEVEMENT_QUERY_FAILED").
			With("account_id", id).
			With("achievement", achievement).
			Wrap(err)
	}
	return account.Progression{Data: json.RawMessage(data), Completed: completed}, nil
}

func (t *tx) Achievements(ctx context.Context, id int64) (map[account.Achievement]account.Progression, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT achievement, data::text, completed FROM account_achievement
		WHERE account_id = $1
	`, id)
	if err != nil {
		return nil, oops.Code("STORE_ACHIEVEMENT_QUERY_FAILED").With("account_id", id).Wrap(err)
	}
	defer rows.Close()

	result := make(map[account.Achievement]account.Progression)
	for rows.Next() {
		var (
			name, data string
			completed  bool
		)
		if err := rows.Scan(&name, &data, &completed); err != nil {
			return nil, oops.Code("STORE_ACHIEVEMENT_QUERY_FAILED").With("account_id", id).Wrap(err)
		}
		a, err := account.ParseAchievement(name)
		if err != nil {
			return nil, oops.Code("STORE_CORRUPT_ROW").With("account_id", id).Wrap(err)
		}
		result[a] = account.Progression{Data: json.RawMessage(data), Completed: completed}
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_ACHIEVEMENT_QUERY_FAILED").With("account_id", id).Wrap(err)
	}
	return result, nil
}

func (t *tx) InsertAchievements(ctx context.Context, id int64, achievements []account.Achievement, completed bool) error {
	if len(achievements) == 0 {
		return nil
	}
	names := make([]string, len(achievements))
	for i, a := range achievements {
		names[i] = string(a)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO account_achievement (account_id, achievement, completed)
		SELECT $1, unnest($2::text[]), $3
	`, id, names, completed)
	if err != nil {
		return mapError(oops.Code("STORE_ACHIEVEMENT_INSERT_FAILED").With("account_id", id), err)
	}
	return nil
}

func (t *tx) UpsertAchievementData(ctx context.Context, id int64, achievement account.Achievement, data json.RawMessage) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO account_achievement (account_id, achievement, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (account_id, achievement) DO UPDATE SET data = EXCLUDED.data
	`, id, string(achievement), string(data))
	if err != nil {
		return mapError(oops.Code("STORE_ACHIEVEMENT_UPDATE_FAILED").
			With("account_id", id).
			With("achievement", achievement), err)
	}
	return nil
}

// CompleteAchievement touches a row only when it is missing or not yet
// completed, so the affected row count is the transition.
func (t *tx) CompleteAchievement(ctx context.Context, id int64, achievement account.Achievement) (bool, error) {
	n, err := t.execAffected(ctx, oops.Code("STORE_ACHIEVEMENT_UPDATE_FAILED").
		With("account_id", id).
		With("achievement", achievement), `
		INSERT INTO account_achievement (account_id, achievement, completed)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (account_id, achievement) DO UPDATE SET completed = TRUE
		WHERE account_achievement.completed = FALSE
	`, id, string(achievement))
	return n > 0, err
}

func (t *tx) ResetAchievement(ctx context.Context, id int64, achievement account.Achievement) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO account_achievement (account_id, achievement, completed)
		VALUES ($1, $2, FALSE)
		ON CONFLICT (account_id, achievement) DO UPDATE SET completed = FALSE
	`, id, string(achievement))
	if err != nil {
		return mapError(oops.Code("STORE_ACHIEVEMENT_UPDATE_FAILED").
			With("account_id", id).
			With("achievement", achievement), err)
	}
	return nil
}
