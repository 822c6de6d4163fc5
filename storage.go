package outbox

import (
	"context"
	"fmt"
	"strings"
)

// Sender inserts messages through a caller-owned transaction.
type Sender[Tx any] interface {
	// Send inserts messages using tx. It never commits.
	Send(ctx context.Context, tx Tx, messages []Message) error
}

// Storage is the capability set a Relay needs from an outbox backend.
type Storage[Tx any] interface {
	Sender[Tx]
	// PeekLock atomically removes up to maxCount rows within tx and returns them in dequeue order.
	// The removal becomes permanent only when tx commits; a rollback restores the rows.
	PeekLock(ctx context.Context, tx Tx, maxCount int) ([]Message, error)
	// Count returns the number of rows visible to tx.
	Count(ctx context.Context, tx Tx) (int, error)
	// Clear removes every row.
	Clear(ctx context.Context, tx Tx) error
}

// Provisioner creates the outbox table when it is missing.
type Provisioner[Tx any] interface {
	// EnsureTable creates the schema and table if absent. It never drops or alters existing data.
	EnsureTable(ctx context.Context, tx Tx) error
}

// Order is the dequeue order policy.
type Order int

const (
	// OrderOldestFirst dequeues by ascending Id (FIFO).
	OrderOldestFirst Order = iota
	// OrderNewestFirst dequeues by descending Id (LIFO).
	OrderNewestFirst
)

// SQL returns the ORDER BY direction keyword.
func (o Order) SQL() string {
	if o == OrderNewestFirst {
		return "DESC"
	}

	return "ASC"
}

// String implements fmt.Stringer.
func (o Order) String() string {
	if o == OrderNewestFirst {
		return "newest-first"
	}

	return "oldest-first"
}

// ParseOrder accepts "oldest-first"/"asc"/"fifo" and "newest-first"/"desc"/"lifo".
// Empty input yields OrderOldestFirst.
func ParseOrder(value string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "oldest-first", "asc", "fifo":
		return OrderOldestFirst, nil
	case "newest-first", "desc", "lifo":
		return OrderNewestFirst, nil
	default:
		return OrderOldestFirst, fmt.Errorf("outbox: unknown order %q", value)
	}
}
