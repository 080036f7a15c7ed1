// Package rabbitmq feeds comparable import records published on a RabbitMQ
// queue into the ingest queue. Deliveries are acknowledged once the import
// worker reports an outcome.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/okian/comparo/internal/adapters/mq/queue"
	"github.com/okian/comparo/internal/domain/dedupe"
	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/pkg/logger"
)

// Enqueuer accepts import jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) bool
}

// Config describes the broker connection.
type Config struct {
	URL         string
	Queue       string
	ConsumerTag string
	Prefetch    int

	// EnqueueRetries and RetryDelay bound how long a delivery waits for
	// room in a full ingest queue before it is requeued on the broker.
	EnqueueRetries int
	RetryDelay     time.Duration
}

const (
	defaultEnqueueRetries = 5
	defaultRetryDelay     = 200 * time.Millisecond
)

// Consumer reads deliveries and enqueues them as import jobs.
type Consumer struct {
	cfg  Config
	jobs Enqueuer
	log  logger.Logger

	conn *amqp.Connection
	ch   *amqp.Channel

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Dial connects, sets QoS and declares the durable queue.
func Dial(cfg Config, jobs Enqueuer) (*Consumer, error) {
	const op = "rabbitmq.Dial"
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 50
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "comparo-import"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: open channel: %w", op, err)
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: qos: %w", op, err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: declare %s: %w", op, cfg.Queue, err)
	}

	c := newConsumer(cfg, jobs)
	c.conn, c.ch = conn, ch
	return c, nil
}

func newConsumer(cfg Config, jobs Enqueuer) *Consumer {
	if cfg.EnqueueRetries <= 0 {
		cfg.EnqueueRetries = defaultEnqueueRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Consumer{cfg: cfg, jobs: jobs, log: logger.Get().Named("rabbitmq")}
}

// Run consumes until ctx ends or the connection closes.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.Consume(c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq.Run: consume: %w", err)
	}
	closed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	c.log.Info(ctx, "consuming", logger.String("queue", c.cfg.Queue), logger.Int("prefetch", c.cfg.Prefetch))

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				return fmt.Errorf("rabbitmq.Run: connection closed: %w", amqpErr)
			}
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

// handle turns one delivery into a job whose outcome settles the delivery.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	id := d.MessageId
	if id == "" {
		id = fmt.Sprintf("amqp-%d", d.DeliveryTag)
	}
	c.wg.Add(1)
	j := queue.Job{
		ID:         id,
		Body:       d.Body,
		Origin:     "amqp",
		ReceivedAt: time.Now(),
		Done: func(err error) {
			defer c.wg.Done()
			c.settle(d, err)
		},
	}
	if !c.enqueue(ctx, j) {
		c.log.Warn(ctx, "ingest queue full, requeueing delivery", logger.String("message_id", id))
		c.settle(d, queue.ErrFull)
		c.wg.Done()
	}
}

// enqueue retries a full queue with a fixed delay. Blocking here keeps
// the consumer from pulling more deliveries than the workers can take.
func (c *Consumer) enqueue(ctx context.Context, j queue.Job) bool {
	for attempt := 0; ; attempt++ {
		if c.jobs.Enqueue(ctx, j) {
			return true
		}
		if attempt+1 >= c.cfg.EnqueueRetries {
			return false
		}
		t := time.NewTimer(c.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}

func (c *Consumer) settle(d amqp.Delivery, err error) {
	var ackErr error
	switch {
	case err == nil, errors.Is(err, dedupe.ErrDuplicate):
		ackErr = d.Ack(false)
	case errors.Is(err, model.ErrValidation):
		// dead-lettered if the queue has a DLX
		ackErr = d.Reject(false)
	default:
		ackErr = d.Nack(false, true)
	}
	if ackErr != nil {
		c.log.Error(context.Background(), "settle delivery", logger.Error(ackErr))
	}
}

// Close waits for in-flight jobs to settle, then closes the connection.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.wg.Wait()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
