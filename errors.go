package outbox

import "errors"

var (
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("outbox batch size must be positive")
	// ErrInvalidHeaders is returned when headers cannot be encoded or stored headers cannot be decoded.
	ErrInvalidHeaders = errors.New("outbox headers must be a JSON object of strings")
	// ErrNilScope indicates that a scope factory returned a nil scope.
	ErrNilScope = errors.New("outbox scope is nil")
	// ErrRelayStarted is returned when Start is called on a running relay.
	ErrRelayStarted = errors.New("outbox relay already started")
	// ErrHandlerPanic indicates a handler panic recovered by the relay.
	ErrHandlerPanic = errors.New("outbox handler panic")
	// ErrWorkerPanic indicates a relay worker panic.
	ErrWorkerPanic = errors.New("outbox worker panic")
)
