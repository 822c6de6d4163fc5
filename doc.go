// Package outbox provides a transactional outbox with pluggable SQL storage backends.
//
// Typical flow:
//  1. Within a business transaction, publish messages with a Producer bound to a storage backend.
//     The rows commit or roll back together with the business change.
//  2. Run a Relay with a ScopeFactory and the same storage. Each iteration opens a new transaction,
//     atomically dequeues a batch (PeekLock), hands every message to a Handler and commits.
//  3. A failed handler rolls the transaction back, which restores the dequeued rows for the next
//     iteration. Delivery is at-least-once; handlers must tolerate duplicates.
//
// Storage backends live in the mysql, postgres, sqlserver and sqlite packages.
package outbox
