package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Client owns one AMQP connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial connects to url and opens a channel.
func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("outbox rabbitmq: dial failed: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("outbox rabbitmq: open channel failed: %w", err)
	}

	return &Client{conn: conn, channel: channel}, nil
}

// Channel returns the underlying AMQP channel.
func (c *Client) Channel() *amqp.Channel {
	return c.channel
}

// DeclareExchange declares a durable exchange of the given kind (e.g. "topic").
func (c *Client) DeclareExchange(name, kind string) error {
	if err := c.channel.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("outbox rabbitmq: declare exchange %q failed: %w", name, err)
	}

	return nil
}

// Close closes the channel and connection.
func (c *Client) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			_ = c.conn.Close()

			return err
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
