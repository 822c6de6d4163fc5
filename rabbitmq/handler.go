package rabbitmq

import (
	"context"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/velmie/sqloutbox"
)

const defaultContentType = "application/octet-stream"

// Config defines how messages are routed and published.
type Config struct {
	Exchange string
	// Route picks the routing key. Defaults to the message type header.
	Route     func(outbox.Message) string
	Transient bool
	Clock     outbox.Clock
}

func (c Config) withDefaults() Config {
	if c.Route == nil {
		c.Route = typeRoute
	}
	if c.Clock == nil {
		c.Clock = outbox.SystemClock
	}

	return c
}

func typeRoute(msg outbox.Message) string {
	return msg.Headers[outbox.HeaderType]
}

// Option configures the Handler.
type Option func(*Config)

// WithExchange sets the target exchange. The default is the AMQP default exchange.
func WithExchange(name string) Option {
	return func(c *Config) {
		c.Exchange = name
	}
}

// WithRoutingKey routes every message with the same key.
func WithRoutingKey(key string) Option {
	return func(c *Config) {
		c.Route = func(outbox.Message) string { return key }
	}
}

// WithRouter sets a routing key function.
func WithRouter(route func(outbox.Message) string) Option {
	return func(c *Config) {
		c.Route = route
	}
}

// WithTransient publishes non-persistent messages.
func WithTransient() Option {
	return func(c *Config) {
		c.Transient = true
	}
}

// WithClock sets the clock used for the publishing timestamp.
func WithClock(clock outbox.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// Handler is an outbox.Handler publishing to RabbitMQ.
type Handler struct {
	pub Publisher
	cfg Config
}

var _ outbox.Handler = (*Handler)(nil)

// NewHandler constructs a Handler publishing through pub.
func NewHandler(pub Publisher, opts ...Option) *Handler {
	if pub == nil {
		panic("outbox rabbitmq: nil Publisher")
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Handler{pub: pub, cfg: cfg.withDefaults()}
}

// Handle publishes msg and returns once the publisher reports success.
func (h *Handler) Handle(ctx context.Context, msg outbox.Message) error {
	key := h.cfg.Route(msg)
	if err := h.pub.Publish(ctx, h.cfg.Exchange, key, h.publishing(msg)); err != nil {
		return fmt.Errorf("outbox rabbitmq: publish to %q/%q failed: %w", h.cfg.Exchange, key, err)
	}

	return nil
}

func (h *Handler) publishing(msg outbox.Message) amqp.Publishing {
	pub := amqp.Publishing{
		ContentType:  defaultContentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    h.cfg.Clock.Now(),
		Body:         msg.Body,
	}
	if h.cfg.Transient {
		pub.DeliveryMode = amqp.Transient
	}

	table := amqp.Table{}
	for k, v := range msg.Headers {
		switch k {
		case outbox.HeaderType:
			pub.Type = v
		case outbox.HeaderMessageID:
			pub.MessageId = v
		case outbox.HeaderCorrelationID:
			pub.CorrelationId = v
		case outbox.HeaderContentType:
			pub.ContentType = v
		default:
			table[k] = v
		}
	}
	if len(table) > 0 {
		pub.Headers = table
	}

	return pub
}
