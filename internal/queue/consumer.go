package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/gamassss/shortlink/internal/logger"
	"github.com/gamassss/shortlink/internal/metrics"
	"github.com/rabbitmq/amqp091-go"
)

var ErrDeliveriesClosed = errors.New("delivery channel closed")

type BatchSink interface {
	RecordVisits(ctx context.Context, visits []*domain.Visit) error
}

// Consumer stores queued visits in batches. A batch is flushed when it is
// full or when FlushInterval passes, whichever comes first.
type Consumer struct {
	sink          BatchSink
	batchSize     int
	flushInterval time.Duration
	writeTimeout  time.Duration
	retryBackoff  time.Duration
	log           *slog.Logger
}

func NewConsumer(sink BatchSink, batchSize int, flushInterval time.Duration) *Consumer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &Consumer{
		sink:          sink,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		writeTimeout:  10 * time.Second,
		retryBackoff:  time.Second,
		log:           logger.Get(),
	}
}

// Run consumes until ctx is done or deliveries is closed. The pending batch
// is flushed either way.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp091.Delivery) error {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	var (
		visits  []*domain.Visit
		pending []amqp091.Delivery
	)
	flush := func() {
		c.flush(visits, pending)
		visits, pending = nil, nil
		ticker.Reset(c.flushInterval)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil

		case d, ok := <-deliveries:
			if !ok {
				flush()
				return ErrDeliveriesClosed
			}

			visit, err := decodeVisit(d.Body)
			if err != nil {
				c.log.Error("Dropping undecodable visit message", "error", err)
				_ = d.Reject(false)
				continue
			}
			visits = append(visits, visit)
			pending = append(pending, d)

			if len(visits) >= c.batchSize {
				flush()
			}

		case <-ticker.C:
			if len(visits) > 0 {
				flush()
			}
		}
	}
}

func (c *Consumer) flush(visits []*domain.Visit, deliveries []amqp091.Delivery) {
	if len(visits) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()

	if err := c.sink.RecordVisits(ctx, visits); err != nil {
		c.log.Error("Failed to store visit batch", "count", len(visits), "error", err)
		metrics.Visits.WithLabelValues("failed").Add(float64(len(visits)))

		// Pause before handing the batch back so a failing sink is not hammered.
		time.Sleep(c.retryBackoff)

		// A message gets one more try. Dropping it on the second failure keeps a
		// poison batch from cycling through the queue forever.
		dropped := 0
		for _, d := range deliveries {
			if d.Redelivered {
				_ = d.Reject(false)
				dropped++
				continue
			}
			_ = d.Nack(false, true)
		}
		if dropped > 0 {
			c.log.Warn("Dropped redelivered visits after repeated failure", "count", dropped)
			metrics.Visits.WithLabelValues("dropped").Add(float64(dropped))
		}
		return
	}

	metrics.Visits.WithLabelValues("recorded").Add(float64(len(visits)))
	for _, d := range deliveries {
		_ = d.Ack(false)
	}
	c.log.Info("Stored visit batch", "count", len(visits))
}
