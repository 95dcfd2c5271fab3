// Package events publishes ledger events to AMQP for external collaborators
// (notification delivery, exports). Publishing is best-effort: the ledger
// never fails a write because an event could not be delivered.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"kasbuku/internal/core"
)

const publishTimeout = 5 * time.Second

// Client wraps an AMQP connection publishing to a direct exchange with a
// durable queue.
type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

// NewClient dials the broker and declares the exchange/queue pair.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,
		c.queueName, // routing key matches queue name on a direct exchange
		c.exchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName,
		c.queueName,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// TransactionPosted publishes a posted-transaction event.
func (c *Client) TransactionPosted(ctx context.Context, t core.Transaction) error {
	msg := NewTransactionMessage(EventTransactionPosted, t)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, body); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Published transaction event",
		"event", msg.Event, "transaction_id", t.ID, "exchange", c.exchangeName)
	return nil
}

// TransactionReversed publishes a reversed-transaction event.
func (c *Client) TransactionReversed(ctx context.Context, t core.Transaction) error {
	msg := NewTransactionMessage(EventTransactionReversed, t)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, body); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Published transaction event",
		"event", msg.Event, "transaction_id", t.ID, "exchange", c.exchangeName)
	return nil
}

// BatchCompleted publishes an automation batch tally.
func (c *Client) BatchCompleted(ctx context.Context, kind, month string, posted, skipped, failed int) error {
	msg := NewBatchMessage(kind, month, posted, skipped, failed)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, body); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Published batch event",
		"kind", kind, "month", month, "exchange", c.exchangeName)
	return nil
}

// Close releases the channel and connection.
func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
