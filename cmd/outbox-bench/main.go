// Command outbox-bench measures enqueue and drain throughput of an outbox table.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/cmd/internal/backend"
	"github.com/velmie/sqloutbox/cmd/internal/config"
)

type mode string

const (
	modeEnqueue mode = "enqueue"
	modeConsume mode = "consume"
	modeFull    mode = "full"
)

const (
	defaultRecords      = 100000
	defaultPayloadBytes = 512
	defaultWorkers      = 4
	defaultProducers    = 4
	defaultBatchSize    = 1000
	defaultSeedBatch    = 1000
	defaultDrainTimeout = 10 * time.Minute
	defaultDrainPoll    = 10 * time.Millisecond
)

var (
	errDSNRequired       = errors.New("outbox-bench: dsn is required")
	errInvalidMode       = errors.New("outbox-bench: invalid mode")
	errInvalidCount      = errors.New("outbox-bench: records, workers, producers and batch sizes must be positive")
	errProcessedMismatch = errors.New("outbox-bench: processed records mismatch")
)

type benchConfig struct {
	driver       string
	dsn          string
	table        string
	order        string
	mode         mode
	records      int
	payloadBytes int
	workers      int
	producers    int
	batchSize    int
	seedBatch    int
	drainTimeout time.Duration
	reset        bool
}

func (c benchConfig) validate() error {
	if c.dsn == "" {
		return errDSNRequired
	}
	if _, err := parseMode(string(c.mode)); err != nil {
		return err
	}
	if c.records <= 0 || c.workers <= 0 || c.producers <= 0 || c.batchSize <= 0 || c.seedBatch <= 0 {
		return errInvalidCount
	}
	if _, err := outbox.ParseOrder(c.order); err != nil {
		return err
	}

	return nil
}

func (c benchConfig) storeConfig() config.Config {
	return config.Config{
		Driver: c.driver,
		DSN:    c.dsn,
		Table:  c.table,
		Order:  c.order,
	}
}

func parseMode(value string) (mode, error) {
	switch mode(value) {
	case modeEnqueue, modeConsume, modeFull:
		return mode(value), nil
	default:
		return "", fmt.Errorf("%w: %q", errInvalidMode, value)
	}
}

func main() {
	var (
		cfg     benchConfig
		runMode string
		jsonOut bool
	)

	flag.StringVar(&cfg.driver, "driver", config.DriverMySQL, "Driver: mysql, postgres, pgx, sqlserver or sqlite3")
	flag.StringVar(&cfg.dsn, "dsn", "", "Data source name (a file path for sqlite3)")
	flag.StringVar(&cfg.table, "table", "outbox_bench", "Outbox table name")
	flag.StringVar(&cfg.order, "order", outbox.OrderOldestFirst.String(), "Dequeue order: oldest-first or newest-first")
	flag.StringVar(&runMode, "mode", string(modeFull), "Benchmark mode: enqueue, consume or full")
	flag.IntVar(&cfg.records, "records", defaultRecords, "Number of records")
	flag.IntVar(&cfg.payloadBytes, "payload-bytes", defaultPayloadBytes, "Payload size in bytes")
	flag.IntVar(&cfg.workers, "workers", defaultWorkers, "Relay workers")
	flag.IntVar(&cfg.producers, "producers", defaultProducers, "Concurrent producers")
	flag.IntVar(&cfg.batchSize, "batch-size", defaultBatchSize, "Relay batch size")
	flag.IntVar(&cfg.seedBatch, "seed-batch", defaultSeedBatch, "Messages per producer transaction")
	flag.DurationVar(&cfg.drainTimeout, "drain-timeout", defaultDrainTimeout, "Time to wait for the relay to drain")
	flag.BoolVar(&cfg.reset, "reset", true, "Create the table if missing and clear it before running")
	flag.BoolVar(&jsonOut, "json", false, "Print JSON result")
	flag.Parse()
	cfg.mode = mode(runMode)

	if err := cfg.validate(); err != nil {
		exitErr(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, cfg)
	if err != nil {
		exitErr(err)
	}
	if err := printResult(os.Stdout, res, jsonOut); err != nil {
		exitErr(err)
	}
}

func run(ctx context.Context, cfg benchConfig) (res result, err error) {
	ob, err := backend.Open(ctx, cfg.storeConfig())
	if err != nil {
		return result{}, err
	}
	defer func() {
		err = errors.Join(err, ob.Close())
	}()

	if cfg.reset {
		if err := ob.EnsureTable(ctx); err != nil {
			return result{}, err
		}
		if err := ob.Clear(ctx); err != nil {
			return result{}, err
		}
	}

	res = result{
		Mode:         cfg.mode,
		Driver:       cfg.driver,
		Records:      cfg.records,
		Workers:      cfg.workers,
		Producers:    cfg.producers,
		BatchSize:    cfg.batchSize,
		PayloadBytes: cfg.payloadBytes,
	}

	payload := buildPayload(cfg.payloadBytes)

	if cfg.mode == modeEnqueue || cfg.mode == modeFull {
		start := time.Now()
		if err := enqueue(ctx, ob, cfg, payload); err != nil {
			return result{}, err
		}
		res.EnqueueDuration = time.Since(start)
		res.EnqueueThroughput = throughput(cfg.records, res.EnqueueDuration)
	}

	if cfg.mode == modeConsume || cfg.mode == modeFull {
		stats, err := drain(ctx, ob, cfg)
		if err != nil {
			return result{}, err
		}
		res.applyDrain(stats)
	}

	return res, nil
}

func printResult(w io.Writer, res result, jsonOut bool) error {
	if jsonOut {
		return json.NewEncoder(w).Encode(res)
	}

	_, err := fmt.Fprintf(w,
		"RESULT mode=%s driver=%s records=%d enqueue=%s (%.0f/s) drain=%s (%.0f/s) "+
			"batch_p50=%.2fms batch_p99=%.2fms workers=%d batch=%d producers=%d payload=%dB\n",
		res.Mode,
		res.Driver,
		res.Records,
		res.EnqueueDuration,
		res.EnqueueThroughput,
		res.DrainDuration,
		res.DrainThroughput,
		res.BatchP50Ms,
		res.BatchP99Ms,
		res.Workers,
		res.BatchSize,
		res.Producers,
		res.PayloadBytes,
	)

	return err
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
