package postgres

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/internal/sqlstore"
)

// Bind parameters are capped at 65535 per statement; each row binds two.
const maxChunkSize = 32767

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	Id BIGSERIAL PRIMARY KEY,
	Headers TEXT NOT NULL,
	Body BYTEA NOT NULL
)`

func newDialect(table sqlstore.TableName, order outbox.Order) sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:        "outbox postgres",
		Placeholder: sq.Dollar,
		Dequeue: fmt.Sprintf(
			"DELETE FROM %[1]s WHERE Id IN (SELECT Id FROM %[1]s ORDER BY Id %[2]s LIMIT $1 FOR UPDATE SKIP LOCKED) RETURNING Id, Headers, Body",
			table,
			order.SQL(),
		),
		Count:        fmt.Sprintf("SELECT COUNT(*) FROM %s", table),
		Clear:        fmt.Sprintf("DELETE FROM %s", table),
		Schema:       schemaStatements(table),
		MaxChunkSize: maxChunkSize,
	}
}

func schemaStatements(table sqlstore.TableName) []string {
	statements := make([]string, 0, 2)
	if table.Schema != "" {
		statements = append(statements, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", table.Schema))
	}

	return append(statements, fmt.Sprintf(schemaTemplate, table))
}
