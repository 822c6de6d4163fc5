package mysql

import (
	"fmt"

	"github.com/velmie/sqloutbox/internal/sqlstore"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	Id BIGINT NOT NULL AUTO_INCREMENT,
	Headers LONGTEXT NOT NULL,
	Body LONGBLOB NOT NULL,
	PRIMARY KEY (Id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// Schema returns the DDL that creates the outbox table when it is missing.
// A "database.table" name creates the database first.
func Schema(table string) ([]string, error) {
	name, err := sqlstore.ParseTableName(table)
	if err != nil {
		return nil, err
	}

	return schemaStatements(name), nil
}

func schemaStatements(name sqlstore.TableName) []string {
	statements := make([]string, 0, 2)
	if name.Schema != "" {
		statements = append(statements, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", name.Schema))
	}

	return append(statements, fmt.Sprintf(schemaTemplate, name))
}
