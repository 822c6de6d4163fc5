package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/velmie/sqloutbox"
)

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PgxScopes returns a scope factory that begins pgx transactions with opts.
func PgxScopes(db TxBeginner, opts pgx.TxOptions) outbox.ScopeFactory[pgx.Tx] {
	return func(ctx context.Context) (outbox.Scope[pgx.Tx], error) {
		tx, err := db.BeginTx(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("outbox postgres: begin tx failed: %w", err)
		}

		return &pgxScope{tx: tx}, nil
	}
}

type pgxScope struct {
	tx pgx.Tx
}

func (s *pgxScope) Tx() pgx.Tx {
	return s.tx
}

func (s *pgxScope) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *pgxScope) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}

	return err
}
