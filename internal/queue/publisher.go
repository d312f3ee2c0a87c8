package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/rabbitmq/amqp091-go"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Publisher is a visit sink that hands visits to the visit worker.
type Publisher struct {
	mu    sync.Mutex
	ch    channel
	queue string
}

func NewPublisher(ch channel, queue string) *Publisher {
	return &Publisher{ch: ch, queue: queue}
}

func (p *Publisher) RecordVisit(ctx context.Context, visit *domain.Visit) error {
	body, err := json.Marshal(visit)
	if err != nil {
		return err
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}

	// amqp channels must not be shared by concurrent publishers.
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
}

func decodeVisit(body []byte) (*domain.Visit, error) {
	var visit domain.Visit
	if err := json.Unmarshal(body, &visit); err != nil {
		return nil, err
	}
	return &visit, nil
}
