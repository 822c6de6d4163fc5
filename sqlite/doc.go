// Package sqlite provides the SQLite outbox storage (SQLite 3.35+ for RETURNING).
//
// PeekLock is a single DELETE ... RETURNING statement. SQLite allows one writer
// at a time, so competing relays wait on the database lock instead of skipping
// rows; open the database with DSN to get a busy timeout and immediate
// transactions.
package sqlite
