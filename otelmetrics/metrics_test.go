package otelmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}

	return out
}

func TestMetricsRecordsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(provider.Meter("test"), attribute.String("outbox.table", "orders_outbox"))
	require.NoError(t, err)

	m.AddProcessed(3)
	m.AddProcessed(2)
	m.AddFailures(1)
	m.AddRedelivered(4)
	m.SetPending(10)
	m.SetPending(7)
	m.ObserveBatchDuration(250 * time.Millisecond)

	got := collect(t, reader)

	processed := got[ProcessedName].Data.(metricdata.Sum[int64])
	require.Len(t, processed.DataPoints, 1)
	require.Equal(t, int64(5), processed.DataPoints[0].Value)
	table, ok := processed.DataPoints[0].Attributes.Value("outbox.table")
	require.True(t, ok)
	require.Equal(t, "orders_outbox", table.AsString())

	require.Equal(t, int64(1), got[FailuresName].Data.(metricdata.Sum[int64]).DataPoints[0].Value)
	require.Equal(t, int64(4), got[RedeliveredName].Data.(metricdata.Sum[int64]).DataPoints[0].Value)
	require.Equal(t, int64(7), got[PendingName].Data.(metricdata.Gauge[int64]).DataPoints[0].Value)

	hist := got[BatchDurationName].Data.(metricdata.Histogram[float64])
	require.Equal(t, uint64(1), hist.DataPoints[0].Count)
	require.InDelta(t, 0.25, hist.DataPoints[0].Sum, 1e-9)
}
