package sqlserver

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/internal/sqlstore"
)

// A table value constructor takes at most 1000 rows.
const maxChunkSize = 1000

const tableTemplate = `IF OBJECT_ID(N'%[1]s', N'U') IS NULL
CREATE TABLE %[1]s (
	Id BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY,
	Headers NVARCHAR(MAX) NOT NULL,
	Body VARBINARY(MAX) NOT NULL
)`

func newDialect(table sqlstore.TableName, order outbox.Order) sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:        "outbox sqlserver",
		Placeholder: sq.AtP,
		Dequeue: fmt.Sprintf(
			"WITH batch AS (SELECT TOP (@p1) Id, Headers, Body FROM %s WITH (ROWLOCK, UPDLOCK, READPAST) ORDER BY Id %s) "+
				"DELETE FROM batch OUTPUT deleted.Id, deleted.Headers, deleted.Body",
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
		statements = append(statements, fmt.Sprintf(
			"IF SCHEMA_ID(N'%[1]s') IS NULL EXEC('CREATE SCHEMA %[1]s')",
			table.Schema,
		))
	}

	return append(statements, fmt.Sprintf(tableTemplate, table))
}
