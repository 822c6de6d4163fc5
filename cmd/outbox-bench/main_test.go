package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/velmie/sqloutbox/cmd/internal/config"
)

func TestValidate(t *testing.T) {
	valid := benchConfig{
		driver:    config.DriverSQLite,
		dsn:       "bench.db",
		order:     "oldest-first",
		mode:      modeFull,
		records:   1,
		workers:   1,
		producers: 1,
		batchSize: 1,
		seedBatch: 1,
	}
	if err := valid.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*benchConfig)
		want   error
	}{
		{name: "no dsn", mutate: func(c *benchConfig) { c.dsn = "" }, want: errDSNRequired},
		{name: "bad mode", mutate: func(c *benchConfig) { c.mode = "mixed" }, want: errInvalidMode},
		{name: "zero records", mutate: func(c *benchConfig) { c.records = 0 }, want: errInvalidCount},
		{name: "zero seed batch", mutate: func(c *benchConfig) { c.seedBatch = 0 }, want: errInvalidCount},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid
			test.mutate(&cfg)
			if err := cfg.validate(); !errors.Is(err, test.want) {
				t.Fatalf("expected %v, got %v", test.want, err)
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	if got := percentile(samples, 0.5); got != 5 {
		t.Fatalf("p50 = %d", got)
	}
	if got := percentile(samples, 0.99); got != 10 {
		t.Fatalf("p99 = %d", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("empty p50 = %d", got)
	}
}

func TestBuildPayload(t *testing.T) {
	if got := len(buildPayload(64)); got != 64 {
		t.Fatalf("payload length %d, want 64", got)
	}
	if got := string(buildPayload(0)); got != `{"data":""}` {
		t.Fatalf("minimal payload %q", got)
	}
}

func TestRunSQLite(t *testing.T) {
	cfg := benchConfig{
		driver:       config.DriverSQLite,
		dsn:          filepath.Join(t.TempDir(), "bench.db"),
		table:        "outbox_bench",
		order:        "oldest-first",
		mode:         modeFull,
		records:      250,
		payloadBytes: 32,
		workers:      2,
		producers:    3,
		batchSize:    40,
		seedBatch:    50,
		drainTimeout: 30 * time.Second,
		reset:        true,
	}

	res, err := run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Processed != 250 {
		t.Fatalf("processed %d, want 250", res.Processed)
	}
	if res.BatchSamples == 0 {
		t.Fatal("expected batch samples")
	}

	var out bytes.Buffer
	if err := printResult(&out, res, true); err != nil {
		t.Fatalf("print: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["processed"] != float64(250) {
		t.Fatalf("json processed %v", decoded["processed"])
	}

	out.Reset()
	if err := printResult(&out, res, false); err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.HasPrefix(out.String(), "RESULT mode=full driver=sqlite3 records=250") {
		t.Fatalf("unexpected text result %q", out.String())
	}
}
