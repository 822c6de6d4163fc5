package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"

	// Registers the "sqlite3" driver.
	_ "github.com/mattn/go-sqlite3"
)

const busyTimeoutMillis = 5000

// DSN returns a go-sqlite3 data source for the database file at path with
// WAL journaling, a busy timeout and BEGIN IMMEDIATE transactions, so
// concurrent relays queue on the write lock rather than failing with SQLITE_BUSY.
func DSN(path string) string {
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(busyTimeoutMillis))
	params.Set("_journal_mode", "WAL")
	params.Set("_txlock", "immediate")

	return "file:" + path + "?" + params.Encode()
}

// Open opens the database file at path using DSN.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("outbox sqlite: open failed: %w", err)
	}

	return db, nil
}
