// Package postgres provides the PostgreSQL outbox storage in two flavors:
// Store over database/sql (lib/pq or pgx stdlib) and PgxStore over pgx.Tx.
//
// PeekLock is a single statement:
//
//	DELETE FROM outbox WHERE Id IN (
//		SELECT Id FROM outbox ORDER BY Id LIMIT $1 FOR UPDATE SKIP LOCKED
//	) RETURNING Id, Headers, Body
//
// Competing relays skip locked rows; a rollback restores the deleted ones.
package postgres
