package mysql

import (
	"errors"
	"strings"
	"testing"
)

func TestSchema(t *testing.T) {
	stmts, err := Schema("outbox")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected a single statement, got %d", len(stmts))
	}
	for _, col := range []string{"Id BIGINT NOT NULL AUTO_INCREMENT", "Headers LONGTEXT", "Body LONGBLOB", "PRIMARY KEY (Id)"} {
		if !strings.Contains(stmts[0], col) {
			t.Fatalf("expected %q in schema", col)
		}
	}
}

func TestSchemaRejectsInvalidName(t *testing.T) {
	if _, err := Schema("outbox; DROP TABLE users"); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
	if _, err := Schema(""); !errors.Is(err, ErrTableNameRequired) {
		t.Fatalf("expected ErrTableNameRequired, got %v", err)
	}
}
