// Package mysql provides the MySQL 8.0+ outbox storage.
//
// The dequeue runs inside the relay's transaction:
//   - READ COMMITTED isolation (to avoid gap locks), see Scopes
//   - SELECT ... ORDER BY Id LIMIT ? FOR UPDATE SKIP LOCKED
//   - DELETE ... WHERE Id IN (...) for the locked rows
//
// Competing relays skip rows locked by each other, and a rollback restores
// the deleted rows. See Schema for the table definition.
package mysql
