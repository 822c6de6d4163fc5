package outbox

import "context"

// Handler processes a single dequeued message, typically by handing it to a broker client.
// Returning an error rolls the whole batch back so it is redelivered later.
type Handler interface {
	// Handle processes a single message and returns an error on failure.
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

// Handle implements Handler.
func (fn HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return fn(ctx, msg)
}
