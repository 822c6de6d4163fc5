package outbox

import (
	"context"
	"fmt"
)

// FailureHandler is called when an iteration is abandoned.
// batch holds the messages returned to the table by the rollback; it is empty when the
// iteration failed before anything was dequeued.
type FailureHandler func(ctx context.Context, batch []Message, err error)

// HandlerError reports which message of a batch failed.
type HandlerError struct {
	// Index is the position of the failed message in dequeue order.
	Index int
	// Message is the failed message.
	Message Message
	// Err is the handler error.
	Err error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("outbox handler failed at index %d (type %q): %v", e.Index, e.Message.Headers[HeaderType], e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
