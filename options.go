package outbox

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultBatchSize is the number of rows dequeued per iteration.
	DefaultBatchSize = 1000
	// DefaultPollInterval is the pause between iterations.
	DefaultPollInterval = time.Second

	defaultWorkers      = 1
	defaultPendingCheck = 0
	tracerName          = "github.com/velmie/sqloutbox"
)

// RelayConfig defines how the Relay polls and processes messages.
type RelayConfig struct {
	BatchSize       int
	PollInterval    time.Duration
	Workers         int
	Clock           Clock
	FailureHandler  FailureHandler
	Logger          Logger
	Metrics         Metrics
	Tracer          trace.Tracer
	HandlerTimeout  time.Duration
	PendingInterval time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	if c.PendingInterval <= 0 {
		c.PendingInterval = defaultPendingCheck
	}

	return c
}

// RelayOption configures Relay behavior.
type RelayOption func(*RelayConfig)

// WithBatchSize sets the maximum number of messages dequeued per iteration.
func WithBatchSize(size int) RelayOption {
	return func(c *RelayConfig) {
		c.BatchSize = size
	}
}

// WithPollInterval sets the pause between iterations.
func WithPollInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PollInterval = interval
	}
}

// WithWorkers sets the number of competing loops run by one Relay.
func WithWorkers(count int) RelayOption {
	return func(c *RelayConfig) {
		c.Workers = count
	}
}

// WithClock sets the Relay clock.
func WithClock(clock Clock) RelayOption {
	return func(c *RelayConfig) {
		c.Clock = clock
	}
}

// WithFailureHandler registers a callback for abandoned iterations.
func WithFailureHandler(handler FailureHandler) RelayOption {
	return func(c *RelayConfig) {
		c.FailureHandler = handler
	}
}

// WithLogger sets the relay logger.
func WithLogger(logger Logger) RelayOption {
	return func(c *RelayConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the relay metrics recorder.
func WithMetrics(metrics Metrics) RelayOption {
	return func(c *RelayConfig) {
		c.Metrics = metrics
	}
}

// WithTracer sets the tracer used for iteration spans.
func WithTracer(tracer trace.Tracer) RelayOption {
	return func(c *RelayConfig) {
		c.Tracer = tracer
	}
}

// WithHandlerTimeout sets a per-message handler timeout.
func WithHandlerTimeout(timeout time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.HandlerTimeout = timeout
	}
}

// WithPendingInterval sets the minimum interval between backlog samples reported to Metrics.
// Use a positive value to enable sampling or zero to keep it disabled.
// The default is disabled.
func WithPendingInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PendingInterval = interval
	}
}
