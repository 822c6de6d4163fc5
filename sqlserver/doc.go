// Package sqlserver provides the SQL Server outbox storage.
//
// PeekLock deletes through an ordered TOP CTE read with ROWLOCK, UPDLOCK and
// READPAST hints and returns the rows with OUTPUT, so competing relays skip
// rows locked by each other.
package sqlserver
