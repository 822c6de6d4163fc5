package mysql

import (
	"database/sql"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/internal/sqlstore"
)

// Store implements outbox.Storage over database/sql for MySQL. PeekLock locks rows
// with SKIP LOCKED and deletes them by id in the same transaction.
type Store struct {
	*sqlstore.Store
}

var (
	_ outbox.Storage[outbox.Querier]     = (*Store)(nil)
	_ outbox.Provisioner[outbox.Querier] = (*Store)(nil)
)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(opts ...Option) (*Store, error) {
	engine, err := sqlstore.NewEngine(opts, newDialect)
	if err != nil {
		return nil, err
	}

	return &Store{Store: sqlstore.NewStore(engine)}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(opts ...Option) *Store {
	store, err := NewStore(opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Scopes returns a scope factory that begins READ COMMITTED transactions on db.
func Scopes(db *sql.DB) outbox.ScopeFactory[outbox.Querier] {
	return outbox.SQLScopes(db, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}
