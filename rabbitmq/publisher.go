package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
)

var (
	// ErrNacked is returned when the broker rejects a confirmed publish.
	ErrNacked = errors.New("outbox rabbitmq: publish nacked by broker")
	// ErrConfirmsClosed is returned when the confirmation stream ends, usually with the channel.
	ErrConfirmsClosed = errors.New("outbox rabbitmq: confirmation channel closed")
)

// Publisher sends one publishing to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
}

// Channel is the part of *amqp.Channel used for publishing.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ConfirmChannel is the part of *amqp.Channel used for publisher confirms.
type ConfirmChannel interface {
	Channel
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
}

type channelPublisher struct {
	ch Channel
}

// NewChannelPublisher publishes without waiting for the broker.
func NewChannelPublisher(ch Channel) Publisher {
	return channelPublisher{ch: ch}
}

func (p channelPublisher) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return p.ch.Publish(exchange, key, false, false, msg)
}

type confirmPublisher struct {
	mu       sync.Mutex
	ch       ConfirmChannel
	confirms chan amqp.Confirmation
	nextTag  uint64
}

// NewConfirmPublisher puts ch into confirm mode. Publish returns only after the
// broker acks the message, the broker nacks it, or ctx ends.
func NewConfirmPublisher(ch ConfirmChannel) (Publisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("outbox rabbitmq: enable confirms failed: %w", err)
	}

	return &confirmPublisher{
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

func (p *confirmPublisher) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.ch.Publish(exchange, key, false, false, msg); err != nil {
		return err
	}
	p.nextTag++
	tag := p.nextTag

	for {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return ErrConfirmsClosed
			}
			// Confirmations of publishes abandoned on cancellation arrive late.
			if confirm.DeliveryTag < tag {
				continue
			}
			if !confirm.Ack {
				return ErrNacked
			}

			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
