package sqlite

import (
	"database/sql"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/internal/sqlstore"
)

// Store implements outbox.Storage over database/sql for SQLite. PeekLock deletes rows
// with DELETE ... RETURNING.
type Store struct {
	*sqlstore.Store
}

var (
	_ outbox.Storage[outbox.Querier]     = (*Store)(nil)
	_ outbox.Provisioner[outbox.Querier] = (*Store)(nil)
)

// NewStore constructs a SQLite store with validated configuration.
func NewStore(opts ...Option) (*Store, error) {
	engine, err := sqlstore.NewEngine(opts, newDialect)
	if err != nil {
		return nil, err
	}

	return &Store{Store: sqlstore.NewStore(engine)}, nil
}

// MustNewStore constructs a SQLite store or panics on error.
func MustNewStore(opts ...Option) *Store {
	store, err := NewStore(opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Scopes returns a scope factory over db. Isolation is always serializable in SQLite.
func Scopes(db *sql.DB) outbox.ScopeFactory[outbox.Querier] {
	return outbox.SQLScopes(db, nil)
}
