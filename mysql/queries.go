package mysql

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/internal/sqlstore"
)

// MySQL has no DELETE ... RETURNING, so rows are locked first and deleted by id.
func newDialect(table sqlstore.TableName, order outbox.Order) sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:        "outbox mysql",
		Placeholder: sq.Question,
		Lock: fmt.Sprintf(
			"SELECT Id, Headers, Body FROM %s ORDER BY Id %s LIMIT ? FOR UPDATE SKIP LOCKED",
			table,
			order.SQL(),
		),
		Count:  fmt.Sprintf("SELECT COUNT(*) FROM %s", table),
		Clear:  fmt.Sprintf("DELETE FROM %s", table),
		Schema: schemaStatements(table),
	}
}
