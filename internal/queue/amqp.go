// Package queue carries relayed payment records from the relay to the
// deposit applier over an AMQP broker (RabbitMQ).
package queue

import (
	"context"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Client owns the broker connection shared by senders and consumers
type Client struct {
	conn *amqp.Connection
}

func Dial(uri string) (*Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("amqp url cannot be empty")
	}
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to broker: %w", err)
	}
	zap.L().Info("Connected to message broker")
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	return err
}

// Sender publishes batches to one durable queue. Each batch is published in
// a channel transaction, so it lands entirely or not at all.
type Sender struct {
	ch            *amqp.Channel
	queue         string
	maxBatchBytes int
}

func (c *Client) NewSender(queue string, maxBatchBytes int) (*Sender, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("unable to open channel: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		ch.Close()
		return nil, fmt.Errorf("unable to declare queue %s: %w", queue, err)
	}
	if err := ch.Tx(); err != nil {
		ch.Close()
		return nil, fmt.Errorf("unable to enter transactional mode: %w", err)
	}
	return &Sender{ch: ch, queue: queue, maxBatchBytes: maxBatchBytes}, nil
}

func (s *Sender) NewBatch() *Batch {
	return NewBatch(s.maxBatchBytes)
}

func (s *Sender) Send(ctx context.Context, batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, body := range batch.Bodies() {
		msg := amqp.Publishing{
			Body:         body,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
		}
		if err := s.ch.Publish("", s.queue, false, false, msg); err != nil {
			if rbErr := s.ch.TxRollback(); rbErr != nil {
				zap.L().Warn("Failed to roll back batch", zap.Error(rbErr))
			}
			return fmt.Errorf("unable to publish to %s: %w", s.queue, err)
		}
	}

	if err := s.ch.TxCommit(); err != nil {
		return fmt.Errorf("unable to commit batch to %s: %w", s.queue, err)
	}
	return nil
}

func (s *Sender) Close() error {
	return s.ch.Close()
}

// Consumer receives deliveries from one durable queue with manual acks
type Consumer struct {
	ch    *amqp.Channel
	queue string
	tag   string
}

func (c *Client) NewConsumer(queue, tag string, prefetch int) (*Consumer, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("unable to open channel: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		ch.Close()
		return nil, fmt.Errorf("unable to declare queue %s: %w", queue, err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("unable to set prefetch: %w", err)
	}
	return &Consumer{ch: ch, queue: queue, tag: tag}, nil
}

// Deliveries starts consuming. The channel closes when the consumer is
// cancelled or the connection drops.
func (c *Consumer) Deliveries() (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to consume %s: %w", c.queue, err)
	}
	return deliveries, nil
}

func (c *Consumer) Close() error {
	if err := c.ch.Cancel(c.tag, false); err != nil {
		zap.L().Warn("Failed to cancel consumer", zap.String("consumer", c.tag), zap.Error(err))
	}
	return c.ch.Close()
}
