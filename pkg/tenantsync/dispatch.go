package tenantsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue mirror updates are published to.
const DefaultQueue = "billing.tenant_sync"

// Message is one mirror update.
type Message struct {
	TenantID string `json:"tenantId"`
	View     View   `json:"view"`
}

func (m Message) validate() error {
	if m.TenantID == "" {
		return fmt.Errorf("%w: missing tenant id", ErrInvalidMessage)
	}
	return nil
}

// Dispatcher delivers a mirror update to wherever it is applied.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg Message) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LocalDispatcher applies updates in-process.
type LocalDispatcher struct {
	applier *Applier
}

// NewLocalDispatcher applies messages in process.
func NewLocalDispatcher(a *Applier) *LocalDispatcher {
	if a == nil {
		panic("tenantsync: nil applier")
	}
	return &LocalDispatcher{applier: a}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	_, err := d.applier.Apply(ctx, msg.TenantID, msg.View)
	return err
}

// Publisher is the part of *amqp.Channel the AMQP dispatcher uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Declarer is the part of *amqp.Channel used to declare the queue.
type Declarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// DeclareQueue declares queue as durable. It is idempotent.
func DeclareQueue(ch Declarer, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("tenantsync: declare %s: %w", queue, err)
	}
	return nil
}

// AMQPDispatcher publishes updates as persistent JSON messages on the default
// exchange, routed to a queue drained by Consumer.
type AMQPDispatcher struct {
	ch    Publisher
	queue string
	now   func() time.Time
}

// NewAMQPDispatcher publishes persistent JSON messages to queue through the
// default exchange.
func NewAMQPDispatcher(ch Publisher, queue string) *AMQPDispatcher {
	if ch == nil {
		panic("tenantsync: nil amqp channel")
	}
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPDispatcher{ch: ch, queue: queue, now: time.Now}
}

// Dispatch publishes msg. The mirror is updated later by a Consumer.
func (d *AMQPDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    d.now().UTC(),
		MessageId:    msg.TenantID + "@" + msg.View.SourceUpdatedAt.UTC().Format(time.RFC3339Nano),
		Body:         body,
	}
	if err := d.ch.PublishWithContext(ctx, "", d.queue, false, false, pub); err != nil {
		return fmt.Errorf("%w: publish: %w", ErrUnavailable, err)
	}
	return nil
}
