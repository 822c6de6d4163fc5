package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/internal/sqlstore"
)

// PgxStore implements outbox.Storage over a native pgx transaction.
type PgxStore struct {
	engine *sqlstore.Engine
}

var (
	_ outbox.Storage[pgx.Tx]     = (*PgxStore)(nil)
	_ outbox.Provisioner[pgx.Tx] = (*PgxStore)(nil)
)

// NewPgxStore constructs a pgx PostgreSQL store.
func NewPgxStore(opts ...Option) (*PgxStore, error) {
	engine, err := sqlstore.NewEngine(opts, newDialect)
	if err != nil {
		return nil, err
	}

	return &PgxStore{engine: engine}, nil
}

// MustNewPgxStore constructs a pgx PostgreSQL store or panics on error.
func MustNewPgxStore(opts ...Option) *PgxStore {
	store, err := NewPgxStore(opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Table returns the validated table name.
func (s *PgxStore) Table() string {
	return s.engine.Table().String()
}

// Send inserts messages with multi-row INSERTs through tx.
func (s *PgxStore) Send(ctx context.Context, tx pgx.Tx, messages []outbox.Message) error {
	if tx == nil {
		return ErrTxRequired
	}
	if len(messages) == 0 {
		return nil
	}

	statements, err := s.engine.Inserts(messages)
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
			return fmt.Errorf("outbox postgres: insert failed: %w", err)
		}
	}

	return nil
}

// PeekLock deletes up to maxCount unlocked rows and returns them.
func (s *PgxStore) PeekLock(ctx context.Context, tx pgx.Tx, maxCount int) ([]outbox.Message, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	if maxCount <= 0 {
		return nil, outbox.ErrInvalidBatchSize
	}

	rows, err := tx.Query(ctx, s.engine.Dialect().Dequeue, maxCount)
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: dequeue failed: %w", err)
	}
	collected, err := sqlstore.CollectRows(rows, min(maxCount, sqlstore.DefaultChunkSize))
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: %w", err)
	}

	messages, err := sqlstore.Messages(collected, s.engine.Order())
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: %w", err)
	}

	return messages, nil
}

// Count returns the number of rows visible to tx.
func (s *PgxStore) Count(ctx context.Context, tx pgx.Tx) (int, error) {
	if tx == nil {
		return 0, ErrTxRequired
	}

	var count int
	if err := tx.QueryRow(ctx, s.engine.Dialect().Count).Scan(&count); err != nil {
		return 0, fmt.Errorf("outbox postgres: count failed: %w", err)
	}

	return count, nil
}

// Clear deletes every row.
func (s *PgxStore) Clear(ctx context.Context, tx pgx.Tx) error {
	if tx == nil {
		return ErrTxRequired
	}
	if _, err := tx.Exec(ctx, s.engine.Dialect().Clear); err != nil {
		return fmt.Errorf("outbox postgres: clear failed: %w", err)
	}

	return nil
}

// EnsureTable creates the schema (when qualified) and the table if missing.
func (s *PgxStore) EnsureTable(ctx context.Context, tx pgx.Tx) error {
	if tx == nil {
		return ErrTxRequired
	}
	for _, stmt := range s.engine.Dialect().Schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("outbox postgres: ensure table failed: %w", err)
		}
	}

	return nil
}
