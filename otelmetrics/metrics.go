// Package otelmetrics implements outbox.Metrics with OpenTelemetry instruments.
package otelmetrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/velmie/sqloutbox"
)

// Instrument names.
const (
	BatchDurationName = "outbox.relay.batch.duration"
	ProcessedName     = "outbox.relay.messages.processed"
	FailuresName      = "outbox.relay.failures"
	RedeliveredName   = "outbox.relay.messages.redelivered"
	PendingName       = "outbox.pending"
)

// Metrics records relay telemetry on a meter.
type Metrics struct {
	duration    metric.Float64Histogram
	processed   metric.Int64Counter
	failures    metric.Int64Counter
	redelivered metric.Int64Counter
	pending     metric.Int64Gauge
	attrs       metric.MeasurementOption
}

var _ outbox.Metrics = (*Metrics)(nil)

// New creates the instruments on meter. attrs are attached to every measurement,
// e.g. attribute.String("outbox.table", "outbox").
func New(meter metric.Meter, attrs ...attribute.KeyValue) (*Metrics, error) {
	duration, err := meter.Float64Histogram(BatchDurationName,
		metric.WithUnit("s"),
		metric.WithDescription("Time spent relaying one dequeued batch."),
	)
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: %s: %w", BatchDurationName, err)
	}
	processed, err := meter.Int64Counter(ProcessedName,
		metric.WithUnit("{message}"),
		metric.WithDescription("Messages relayed and committed."),
	)
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: %s: %w", ProcessedName, err)
	}
	failures, err := meter.Int64Counter(FailuresName,
		metric.WithUnit("{iteration}"),
		metric.WithDescription("Relay iterations abandoned with a rollback."),
	)
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: %s: %w", FailuresName, err)
	}
	redelivered, err := meter.Int64Counter(RedeliveredName,
		metric.WithUnit("{message}"),
		metric.WithDescription("Messages returned to the outbox by a rollback."),
	)
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: %s: %w", RedeliveredName, err)
	}
	pending, err := meter.Int64Gauge(PendingName,
		metric.WithUnit("{message}"),
		metric.WithDescription("Rows waiting in the outbox table."),
	)
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: %s: %w", PendingName, err)
	}

	return &Metrics{
		duration:    duration,
		processed:   processed,
		failures:    failures,
		redelivered: redelivered,
		pending:     pending,
		attrs:       metric.WithAttributeSet(attribute.NewSet(attrs...)),
	}, nil
}

func (m *Metrics) ObserveBatchDuration(duration time.Duration) {
	m.duration.Record(context.Background(), duration.Seconds(), m.attrs)
}

func (m *Metrics) AddProcessed(count int) {
	m.processed.Add(context.Background(), int64(count), m.attrs)
}

func (m *Metrics) AddFailures(count int) {
	m.failures.Add(context.Background(), int64(count), m.attrs)
}

func (m *Metrics) AddRedelivered(count int) {
	m.redelivered.Add(context.Background(), int64(count), m.attrs)
}

func (m *Metrics) SetPending(count int) {
	m.pending.Record(context.Background(), int64(count), m.attrs)
}
