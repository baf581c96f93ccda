// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

// Package postgres implements account.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/cnnetwork/imperium/internal/account"
)

// DB starts transactions. *pgxpool.Pool and pgxmock pools implement it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements account.Store.
type Store struct {
	db DB
}

var _ account.Store = (*Store)(nil)

// NewStore creates a Store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// InTx implements account.Store. fn's error is returned as is so sentinel
// errors such as account.ErrConflict survive the rollback.
func (s *Store) InTx(ctx context.Context, fn func(tx account.Tx) error) error {
	ptx, err := s.db.Begin(ctx)
	if err != nil {
		return oops.Code("STORE_TX_BEGIN_FAILED").Wrap(err)
	}

	if err := fn(&tx{tx: ptx}); err != nil {
		if rbErr := ptx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, oops.Code("STORE_TX_ROLLBACK_FAILED").Wrap(rbErr))
		}
		return err
	}

	if err := ptx.Commit(ctx); err != nil {
		return mapError(oops.Code("STORE_TX_COMMIT_FAILED"), err)
	}
	return nil
}

// tx implements account.Tx over one pgx transaction.
type tx struct {
	tx pgx.Tx
}

var _ account.Tx = (*tx)(nil)

// mapError turns constraint violations into account sentinels and wraps
// everything else with the builder's code.
func mapError(b oops.OopsErrorBuilder, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return oops.Code("STORE_CONFLICT").With("constraint", pgErr.ConstraintName).Wrap(account.ErrConflict)
		case pgerrcode.ForeignKeyViolation:
			return oops.Code("STORE_NOT_FOUND").With("constraint", pgErr.ConstraintName).Wrap(account.ErrNotFound)
		}
	}
	return b.Wrap(err)
}

func (t *tx) exists(ctx context.Context, code, query string, args ...any) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, oops.Code(code).Wrap(err)
	}
	return exists, nil
}

// execAffected runs a statement and reports whether it touched any row.
func (t *tx) execAffected(ctx context.Context, b oops.OopsErrorBuilder, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, mapError(b, err)
	}
	return tag.RowsAffected(), nil
}
