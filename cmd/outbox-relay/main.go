// Command outbox-relay drains an outbox table into RabbitMQ, or into the log when
// no broker is configured, and serves health and backlog endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/cmd/internal/admin"
	"github.com/velmie/sqloutbox/cmd/internal/backend"
	"github.com/velmie/sqloutbox/cmd/internal/config"
)

var errRelayExited = errors.New("outbox relay exited unexpectedly")

const (
	instrumentationName = "github.com/velmie/sqloutbox/cmd/outbox-relay"
	shutdownTimeout     = 30 * time.Second
)

func main() {
	var (
		configFile string
		envFile    string
	)

	flag.StringVar(&configFile, "config", "", "Config file (YAML, JSON or TOML); OUTBOX_* env vars override it")
	flag.StringVar(&envFile, "env-file", ".env", "Optional .env file")
	flag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, out io.Writer) (err error) {
	logger, err := newLogger(out, cfg.Log)
	if err != nil {
		return err
	}

	ob, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, ob.Close())
	}()

	if cfg.EnsureTable {
		if err := ob.EnsureTable(ctx); err != nil {
			return fmt.Errorf("ensure table: %w", err)
		}
	}

	handler, closeHandler, err := newHandler(cfg.RabbitMQ, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeHandler())
	}()

	metrics, shutdownMetrics, err := newMetrics(cfg.Metrics, out, ob.Table())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, shutdownMetrics(shutdownCtx))
	}()

	relay := ob.NewRelay(handler,
		outbox.WithBatchSize(cfg.Relay.BatchSize),
		outbox.WithPollInterval(cfg.Relay.PollInterval),
		outbox.WithWorkers(cfg.Relay.Workers),
		outbox.WithHandlerTimeout(cfg.Relay.HandlerTimeout),
		outbox.WithPendingInterval(cfg.Relay.PendingInterval),
		outbox.WithLogger(logger),
		outbox.WithMetrics(metrics),
		outbox.WithTracer(otel.Tracer(instrumentationName)),
		outbox.WithFailureHandler(func(_ context.Context, batch []outbox.Message, err error) {
			logger.Warn("outbox batch left for redelivery", "messages", len(batch), "err", err)
		}),
	)
	if err := relay.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Admin.Addr != "" {
		srv := admin.NewServer(cfg.Admin.Addr, admin.NewRouter(relay,
			admin.WithLogger(logger),
			admin.WithCORSOrigins(cfg.Admin.CORSOrigins),
		))
		g.Go(func() error {
			logger.Info("admin server listening", "addr", cfg.Admin.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}

			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return superviseRelay(gctx, relay)
	})

	logger.Info("outbox relay running", "driver", ob.Driver(), "table", ob.Table())

	return g.Wait()
}

// superviseRelay stops relay when ctx ends and fails when the relay loop ends on its own.
func superviseRelay(ctx context.Context, relay backend.Relay) error {
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return relay.Stop(shutdownCtx)
	case <-relay.Done():
		return errors.Join(errRelayExited, relay.Err())
	}
}
