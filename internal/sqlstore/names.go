package sqlstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("outbox: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("outbox: invalid table name")
)

// TableName is a validated, optionally schema-qualified table identifier.
type TableName struct {
	Schema string
	Table  string
}

// String returns the qualified name used in statements.
func (n TableName) String() string {
	if n.Schema == "" {
		return n.Table
	}

	return n.Schema + "." + n.Table
}

// ParseTableName validates "table" or "schema.table". Each part may contain only
// ASCII letters, digits and underscores, which keeps it safe to splice into SQL.
func ParseTableName(name string) (TableName, error) {
	if name == "" {
		return TableName{}, ErrTableNameRequired
	}

	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return TableName{}, fmt.Errorf("%w: %s", ErrInvalidTableName, name)
	}
	for _, part := range parts {
		if !validIdentifier(part) {
			return TableName{}, fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	if len(parts) == 1 {
		return TableName{Table: parts[0]}, nil
	}

	return TableName{Schema: parts[0], Table: parts[1]}, nil
}

func validIdentifier(part string) bool {
	if part == "" {
		return false
	}
	for _, r := range part {
		if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}

		return false
	}

	return true
}
