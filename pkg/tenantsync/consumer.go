package tenantsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/yamooSoluto/payment-sub001/pkg/logger"
)

// Subscriber is the part of *amqp.Channel the consumer uses.
type Subscriber interface {
	Declarer
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// ErrDeliveriesClosed is returned by Run when the broker closes the stream.
var ErrDeliveriesClosed = errors.New("tenantsync.deliveries_closed")

// Consumer applies updates published by AMQPDispatcher.
type Consumer struct {
	applier  *Applier
	prefetch int
	logger   *slog.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithPrefetch sets the channel QoS prefetch count. Defaults to 50.
func WithPrefetch(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

func WithConsumerLogger(l *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConsumer applies queued mirror updates with a.
func NewConsumer(a *Applier, opts ...ConsumerOption) *Consumer {
	if a == nil {
		panic("tenantsync: nil applier")
	}
	c := &Consumer{applier: a, prefetch: 50, logger: logger.Discard()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("tenantsync.consumer"))
	return c
}

// Subscribe declares queue, starts consuming it and blocks in Run.
func (c *Consumer) Subscribe(ctx context.Context, ch Subscriber, queue string) error {
	if queue == "" {
		queue = DefaultQueue
	}
	if err := DeclareQueue(ch, queue); err != nil {
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.logger.WarnContext(ctx, "set qos failed", logger.Error(err))
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("tenantsync: consume %s: %w", queue, err)
	}
	return c.Run(ctx, deliveries)
}

// Run applies deliveries until ctx is done or the channel closes. Each
// delivery is acked once handled. Malformed messages are rejected without
// requeue; store failures are requeued once.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.ErrorContext(ctx, "malformed mirror update", logger.Error(err))
		c.settle(ctx, d.Nack(false, false))
		return
	}
	if err := msg.validate(); err != nil {
		c.logger.ErrorContext(ctx, "invalid mirror update", logger.Error(err))
		c.settle(ctx, d.Nack(false, false))
		return
	}

	if _, err := c.applier.Apply(ctx, msg.TenantID, msg.View); err != nil {
		c.logger.ErrorContext(ctx, "apply mirror update failed",
			logger.TenantID(msg.TenantID),
			logger.Error(err),
		)
		c.settle(ctx, d.Nack(false, !d.Redelivered))
		return
	}
	c.settle(ctx, d.Ack(false))
}

func (c *Consumer) settle(ctx context.Context, err error) {
	if err != nil {
		c.logger.WarnContext(ctx, "settle delivery failed", logger.Error(err))
	}
}
