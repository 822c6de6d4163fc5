package postgres

import (
	"github.com/velmie/sqloutbox/internal/sqlstore"
)

var (
	// ErrTxRequired is returned when a storage call receives a nil transaction.
	ErrTxRequired = sqlstore.ErrTxRequired
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = sqlstore.ErrTableNameRequired
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = sqlstore.ErrInvalidTableName
)
