package sqlite

import (
	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/internal/sqlstore"
)

// Option configures the SQLite store.
type Option = sqlstore.Option

// WithTable sets the outbox table name. A qualified name must refer to an attached database.
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
