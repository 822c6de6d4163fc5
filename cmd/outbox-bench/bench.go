package main

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/cmd/internal/backend"
)

type result struct {
	Mode              mode          `json:"mode"`
	Driver            string        `json:"driver"`
	Records           int           `json:"records"`
	Processed         int64         `json:"processed"`
	EnqueueDuration   time.Duration `json:"enqueue_duration"`
	EnqueueThroughput float64       `json:"enqueue_msg_per_sec"`
	DrainDuration     time.Duration `json:"drain_duration"`
	DrainThroughput   float64       `json:"drain_msg_per_sec"`
	Workers           int           `json:"workers"`
	Producers         int           `json:"producers"`
	BatchSize         int           `json:"batch_size"`
	PayloadBytes      int           `json:"payload_bytes"`
	BatchP50Ms        float64       `json:"batch_p50_ms"`
	BatchP95Ms        float64       `json:"batch_p95_ms"`
	BatchP99Ms        float64       `json:"batch_p99_ms"`
	BatchMaxMs        float64       `json:"batch_max_ms"`
	BatchSamples      int           `json:"batch_samples"`
}

func (r *result) applyDrain(stats drainStats) {
	r.Processed = stats.processed
	r.DrainDuration = stats.duration
	r.DrainThroughput = throughput(int(stats.processed), stats.duration)
	r.BatchSamples = len(stats.batches)
	r.BatchP50Ms = msFloat(percentile(stats.batches, 0.50))
	r.BatchP95Ms = msFloat(percentile(stats.batches, 0.95))
	r.BatchP99Ms = msFloat(percentile(stats.batches, 0.99))
	r.BatchMaxMs = msFloat(percentile(stats.batches, 1))
}

// enqueue splits cfg.records across producers, each committing seedBatch messages per transaction.
func enqueue(ctx context.Context, ob *backend.Outbox, cfg benchConfig, payload []byte) error {
	var next atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < cfg.producers; p++ {
		g.Go(func() error {
			for {
				end := next.Add(int64(cfg.seedBatch))
				start := end - int64(cfg.seedBatch)
				if start >= int64(cfg.records) {
					return nil
				}
				end = min(end, int64(cfg.records))

				msgs := make([]outbox.Message, 0, end-start)
				for i := start; i < end; i++ {
					msgs = append(msgs, outbox.NewMessage(payload, outbox.Headers{
						outbox.HeaderType: "BenchRecord",
						"seq":             fmt.Sprint(i),
					}))
				}
				if err := ob.Publish(gctx, msgs...); err != nil {
					return err
				}
			}
		})
	}

	return g.Wait()
}

type drainStats struct {
	processed int64
	duration  time.Duration
	batches   []time.Duration
}

// drain starts a relay and waits until cfg.records messages have been committed.
func drain(ctx context.Context, ob *backend.Outbox, cfg benchConfig) (drainStats, error) {
	recorder := &batchRecorder{}
	relay := ob.NewRelay(
		outbox.HandlerFunc(func(context.Context, outbox.Message) error { return nil }),
		outbox.WithWorkers(cfg.workers),
		outbox.WithBatchSize(cfg.batchSize),
		outbox.WithPollInterval(defaultDrainPoll),
		outbox.WithMetrics(recorder),
	)

	start := time.Now()
	if err := relay.Start(ctx); err != nil {
		return drainStats{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(defaultDrainPoll)
	defer ticker.Stop()

	var waitErr error
	for recorder.Processed() < int64(cfg.records) {
		select {
		case <-waitCtx.Done():
			waitErr = waitCtx.Err()
		case <-ticker.C:
		}
		if waitErr != nil {
			break
		}
	}
	duration := time.Since(start)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Minute)
	defer stopCancel()
	if err := relay.Stop(stopCtx); err != nil {
		return drainStats{}, err
	}

	stats := drainStats{
		processed: recorder.Processed(),
		duration:  duration,
		batches:   recorder.Batches(),
	}
	if waitErr != nil {
		return stats, fmt.Errorf("%w: processed %d of %d: %w", errProcessedMismatch, stats.processed, cfg.records, waitErr)
	}

	return stats, nil
}

// batchRecorder implements outbox.Metrics, keeping every batch duration.
type batchRecorder struct {
	outbox.NopMetrics

	processed atomic.Int64
	mu        sync.Mutex
	batches   []time.Duration
}

func (m *batchRecorder) ObserveBatchDuration(d time.Duration) {
	m.mu.Lock()
	m.batches = append(m.batches, d)
	m.mu.Unlock()
}

func (m *batchRecorder) AddProcessed(n int) {
	m.processed.Add(int64(n))
}

func (m *batchRecorder) Processed() int64 {
	return m.processed.Load()
}

// Batches returns a sorted copy of the recorded durations.
func (m *batchRecorder) Batches() []time.Duration {
	m.mu.Lock()
	out := slices.Clone(m.batches)
	m.mu.Unlock()
	slices.Sort(out)

	return out
}

// percentile expects sorted samples.
func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(samples)))) - 1
	idx = max(0, min(idx, len(samples)-1))

	return samples[idx]
}

func throughput(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}

	return float64(n) / d.Seconds()
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func buildPayload(size int) []byte {
	const envelope = `{"data":""}`
	data := make([]byte, max(0, size-len(envelope)))
	for i := range data {
		data[i] = 'a'
	}

	return fmt.Appendf(nil, `{"data":"%s"}`, data)
}
