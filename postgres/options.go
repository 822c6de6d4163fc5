package postgres

import (
	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/internal/sqlstore"
)

// Option configures Store and PgxStore.
type Option = sqlstore.Option

// WithTable sets the outbox table name, optionally qualified as "schema.table".
func WithTable(name string) Option {
	return sqlstore.WithTable(name)
}

// WithOrder sets the dequeue order. The default is outbox.OrderOldestFirst.
func WithOrder(order outbox.Order) Option {
	return sqlstore.WithOrder(order)
}

// WithChunkSize sets the number of rows written by one INSERT.
func WithChunkSize(size int) Option {
	return sqlstore.WithChunkSize(size)
}
