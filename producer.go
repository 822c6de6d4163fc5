package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ProducerConfig defines how a Producer prepares messages before insert.
type ProducerConfig struct {
	MessageIDs bool
	Validate   func(Message) error
	NewID      func() (string, error)
}

// ProducerOption configures a Producer.
type ProducerOption func(*ProducerConfig)

// WithMessageIDs stamps a HeaderMessageID (UUIDv7) on messages that do not carry one,
// giving receivers a key for deduplicating redeliveries.
func WithMessageIDs() ProducerOption {
	return func(c *ProducerConfig) {
		c.MessageIDs = true
	}
}

// WithValidation runs fn on every message before insert. A non-nil error aborts the publish.
func WithValidation(fn func(Message) error) ProducerOption {
	return func(c *ProducerConfig) {
		c.Validate = fn
	}
}

// WithIDGenerator replaces the UUIDv7 generator used by WithMessageIDs.
func WithIDGenerator(fn func() (string, error)) ProducerOption {
	return func(c *ProducerConfig) {
		c.NewID = fn
	}
}

func (c ProducerConfig) withDefaults() ProducerConfig {
	if c.NewID == nil {
		c.NewID = newUUIDv7
	}

	return c
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// Producer enqueues messages inside a transaction owned by the caller.
// It never commits: the rows become visible only when the caller commits, and vanish
// together with the business change when the caller rolls back.
type Producer[Tx any] struct {
	sender Sender[Tx]
	cfg    ProducerConfig
}

// NewProducer constructs a Producer writing through sender.
func NewProducer[Tx any](sender Sender[Tx], opts ...ProducerOption) *Producer[Tx] {
	if sender == nil {
		panic("outbox: nil Sender")
	}

	var cfg ProducerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Producer[Tx]{sender: sender, cfg: cfg.withDefaults()}
}

// Publish inserts msg using tx. Headers passed here are merged over the message headers;
// on a key conflict the value given to Publish wins.
func (p *Producer[Tx]) Publish(ctx context.Context, tx Tx, msg Message, headers ...Headers) error {
	return p.PublishBatch(ctx, tx, []Message{msg}, headers...)
}

// PublishBatch inserts all messages using tx. Storages split large batches into chunks
// that fit the database's parameter limits; every chunk runs in the same transaction.
// Store errors are wrapped with "outbox: publish failed"; the caller retries the whole business transaction.
func (p *Producer[Tx]) PublishBatch(ctx context.Context, tx Tx, msgs []Message, headers ...Headers) error {
	if len(msgs) == 0 {
		return nil
	}

	prepared := make([]Message, 0, len(msgs))
	for i := range msgs {
		msg, err := p.prepare(msgs[i], headers)
		if err != nil {
			return err
		}
		prepared = append(prepared, msg)
	}

	if err := p.sender.Send(ctx, tx, prepared); err != nil {
		return fmt.Errorf("outbox: publish failed: %w", err)
	}

	return nil
}

func (p *Producer[Tx]) prepare(msg Message, headers []Headers) (Message, error) {
	out := msg.WithHeaders(headers...)
	if out.Body == nil {
		out.Body = []byte{}
	}

	if p.cfg.MessageIDs && out.Headers[HeaderMessageID] == "" {
		id, err := p.cfg.NewID()
		if err != nil {
			return Message{}, fmt.Errorf("outbox: generate message id failed: %w", err)
		}
		out.Headers[HeaderMessageID] = id
	}

	if p.cfg.Validate != nil {
		if err := p.cfg.Validate(out); err != nil {
			return Message{}, fmt.Errorf("outbox: invalid message: %w", err)
		}
	}

	return out, nil
}
