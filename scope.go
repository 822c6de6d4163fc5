package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Scope is one transactional unit of work handed to the Relay.
type Scope[Tx any] interface {
	// Tx returns the transaction handle passed to Storage calls.
	Tx() Tx
	// Commit finalizes the scope.
	Commit(ctx context.Context) error
	// Rollback discards the scope. Calling it after Commit is a no-op.
	Rollback(ctx context.Context) error
}

// ScopeFactory opens a new Scope.
type ScopeFactory[Tx any] func(ctx context.Context) (Scope[Tx], error)

// Querier is the subset of *sql.Tx used by database/sql backed storages.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLScopes returns a ScopeFactory that begins database/sql transactions with opts.
func SQLScopes(db *sql.DB, opts *sql.TxOptions) ScopeFactory[Querier] {
	return func(ctx context.Context) (Scope[Querier], error) {
		tx, err := db.BeginTx(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("outbox: begin tx failed: %w", err)
		}

		return &sqlScope{tx: tx}, nil
	}
}

type sqlScope struct {
	tx *sql.Tx
}

func (s *sqlScope) Tx() Querier {
	return s.tx
}

func (s *sqlScope) Commit(context.Context) error {
	return s.tx.Commit()
}

func (s *sqlScope) Rollback(context.Context) error {
	err := s.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}

	return err
}

// Provision opens a scope, ensures the outbox table exists and commits.
func Provision[Tx any](ctx context.Context, scopes ScopeFactory[Tx], p Provisioner[Tx]) error {
	scope, err := scopes(ctx)
	if err != nil {
		return err
	}
	if scope == nil {
		return ErrNilScope
	}

	if err := p.EnsureTable(ctx, scope.Tx()); err != nil {
		return errors.Join(err, scope.Rollback(ctx))
	}
	if err := scope.Commit(ctx); err != nil {
		return errors.Join(fmt.Errorf("outbox: commit failed: %w", err), scope.Rollback(ctx))
	}

	return nil
}
