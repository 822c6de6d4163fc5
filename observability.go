package outbox

import "time"

// Logger receives structured key/value log records from the relay.
// *slog.Logger satisfies it, so WithLogger(slog.Default()) works out of the box.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Metrics captures relay-level telemetry. See the otelmetrics package for an OpenTelemetry
// implementation.
type Metrics interface {
	// ObserveBatchDuration records the time spent on one iteration that dequeued messages.
	ObserveBatchDuration(duration time.Duration)
	// AddProcessed increments the count of messages relayed and committed.
	AddProcessed(count int)
	// AddFailures increments the count of abandoned iterations.
	AddFailures(count int)
	// AddRedelivered increments the count of messages returned to the table by a rollback.
	AddRedelivered(count int)
	// SetPending updates the current backlog size.
	SetPending(count int)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (fn ClockFunc) Now() time.Time { return fn() }

// SystemClock reads the wall clock in UTC.
var SystemClock = ClockFunc(func() time.Time { return time.Now().UTC() })

// NopLogger discards all records.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveBatchDuration(time.Duration) {}
func (NopMetrics) AddProcessed(int)                   {}
func (NopMetrics) AddFailures(int)                    {}
func (NopMetrics) AddRedelivered(int)                 {}
func (NopMetrics) SetPending(int)                     {}
