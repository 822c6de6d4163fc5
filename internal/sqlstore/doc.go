// Package sqlstore holds the database/sql machinery shared by the outbox backends:
// table name validation, chunked multi-row inserts built with squirrel, the
// dequeue-and-delete flow and row decoding.
package sqlstore
