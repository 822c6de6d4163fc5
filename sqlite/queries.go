package sqlite

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/internal/sqlstore"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	Id INTEGER PRIMARY KEY AUTOINCREMENT,
	Headers TEXT NOT NULL,
	Body BLOB NOT NULL
)`

func newDialect(table sqlstore.TableName, order outbox.Order) sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:        "outbox sqlite",
		Placeholder: sq.Question,
		Dequeue: fmt.Sprintf(
			"DELETE FROM %[1]s WHERE Id IN (SELECT Id FROM %[1]s ORDER BY Id %[2]s LIMIT ?) RETURNING Id, Headers, Body",
			table,
			order.SQL(),
		),
		Count:  fmt.Sprintf("SELECT COUNT(*) FROM %s", table),
		Clear:  fmt.Sprintf("DELETE FROM %s", table),
		Schema: []string{fmt.Sprintf(schemaTemplate, table)},
	}
}
