package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/velmie/sqloutbox"
	"github.com/velmie/sqloutbox/cmd/internal/config"
	"github.com/velmie/sqloutbox/otelmetrics"
	"github.com/velmie/sqloutbox/rabbitmq"
)

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}

	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

// newHandler connects to RabbitMQ, or logs messages when no URL is configured.
func newHandler(cfg config.RabbitMQConfig, logger *slog.Logger) (outbox.Handler, func() error, error) {
	if cfg.URL == "" {
		logger.Warn("rabbitmq.url is empty, relayed messages are only logged")

		return logHandler(logger), func() error { return nil }, nil
	}

	client, err := rabbitmq.Dial(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Exchange != "" {
		if err := client.DeclareExchange(cfg.Exchange, cfg.ExchangeKind); err != nil {
			_ = client.Close()

			return nil, nil, err
		}
	}

	var pub rabbitmq.Publisher
	if cfg.Confirms {
		pub, err = rabbitmq.NewConfirmPublisher(client.Channel())
		if err != nil {
			_ = client.Close()

			return nil, nil, err
		}
	} else {
		pub = rabbitmq.NewChannelPublisher(client.Channel())
	}

	opts := []rabbitmq.Option{rabbitmq.WithExchange(cfg.Exchange)}
	if cfg.RoutingKey != "" {
		opts = append(opts, rabbitmq.WithRoutingKey(cfg.RoutingKey))
	}

	return rabbitmq.NewHandler(pub, opts...), client.Close, nil
}

func logHandler(logger *slog.Logger) outbox.Handler {
	return outbox.HandlerFunc(func(ctx context.Context, msg outbox.Message) error {
		logger.InfoContext(ctx, "outbox message",
			"type", msg.Headers[outbox.HeaderType],
			"message_id", msg.Headers[outbox.HeaderMessageID],
			"bytes", len(msg.Body),
		)

		return nil
	})
}

// newMetrics exports relay metrics to w every cfg.ExportInterval.
func newMetrics(cfg config.MetricsConfig, w io.Writer, table string) (outbox.Metrics, func(context.Context) error, error) {
	if cfg.ExportInterval <= 0 {
		return outbox.NopMetrics{}, func(context.Context) error { return nil }, nil
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.ExportInterval)),
	))

	metrics, err := otelmetrics.New(provider.Meter(instrumentationName), attribute.String("outbox.table", table))
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)

		return nil, nil, err
	}

	return metrics, provider.Shutdown, nil
}
