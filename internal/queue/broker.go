// Package queue moves visits through RabbitMQ so the API never waits on the
// visits table.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

var ErrClosed = errors.New("amqp connection closed")

type Broker struct {
	conn  *amqp091.Connection
	ch    *amqp091.Channel
	queue string
}

// Dial connects and declares the durable visits queue.
func Dial(url, queue string) (*Broker, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &Broker{conn: conn, ch: ch, queue: queue}, nil
}

func (b *Broker) Publisher() *Publisher {
	return NewPublisher(b.ch, b.queue)
}

// Consume starts a manual-ack consumer that is handed at most prefetch
// unacknowledged deliveries.
func (b *Broker) Consume(prefetch int) (<-chan amqp091.Delivery, error) {
	if err := b.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	return b.ch.Consume(b.queue, "", false, false, false, false, nil)
}

func (b *Broker) Ping(_ context.Context) error {
	if b.conn.IsClosed() || b.ch.IsClosed() {
		return ErrClosed
	}
	return nil
}

func (b *Broker) Close() error {
	if err := b.ch.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
		b.conn.Close()
		return err
	}
	return b.conn.Close()
}
