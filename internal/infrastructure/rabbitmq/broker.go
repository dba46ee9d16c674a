package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/messaging"
)

var ErrNotConfirmed = errors.New("rabbitmq: broker did not confirm publish")

type Options struct {
	Prefetch       int
	PublishTimeout time.Duration
	// DeadLetterQueue names the dead-letter queue of a work queue. Defaults to
	// messaging.DeadLetterQueue.
	DeadLetterQueue func(queue string) string
}

// Broker publishes on one confirm-mode channel and opens a channel per
// subscription.
type Broker struct {
	conn   *amqp.Connection
	opts   Options
	logger *logrus.Logger

	mu       sync.Mutex
	pub      *amqp.Channel
	declared map[string]bool
}

func NewBroker(conn *amqp.Connection, opts Options, logger *logrus.Logger) (*Broker, error) {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.DeadLetterQueue == nil {
		opts.DeadLetterQueue = messaging.DeadLetterQueue
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &Broker{
		conn:     conn,
		opts:     opts,
		logger:   logger,
		pub:      ch,
		declared: make(map[string]bool),
	}, nil
}

var (
	_ messaging.Publisher  = (*Broker)(nil)
	_ messaging.Subscriber = (*Broker)(nil)
)

// Close closes the publish channel. The connection belongs to the caller.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub == nil {
		return nil
	}
	err := b.pub.Close()
	b.pub = nil
	return err
}

func (b *Broker) ensureQueue(queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub == nil {
		return amqp.ErrClosed
	}
	if b.declared[queue] {
		return nil
	}
	if err := DeclareQueue(b.pub, queue, b.opts.DeadLetterQueue(queue)); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	b.declared[queue] = true
	return nil
}

// Publish sends msg as a persistent message and waits for the broker ack.
func (b *Broker) Publish(ctx context.Context, queue string, msg messaging.Message) error {
	if err := b.ensureQueue(queue); err != nil {
		return err
	}
	return b.publishRaw(ctx, queue, msg)
}

func (b *Broker) publishRaw(ctx context.Context, routingKey string, msg messaging.Message) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.PublishTimeout)
	defer cancel()

	b.mu.Lock()
	ch := b.pub
	b.mu.Unlock()
	if ch == nil {
		return amqp.ErrClosed
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		"",         // default exchange
		routingKey, // routing key = queue
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			MessageId:    msg.ID,
			Type:         msg.Type,
			ContentType:  msg.ContentType,
			DeliveryMode: amqp.Persistent,
			Timestamp:    ts.UTC(),
			Headers:      amqp.Table(msg.Headers),
			Body:         msg.Body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}
	if confirm == nil {
		return nil
	}
	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm from %s: %w", routingKey, err)
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}

// Consume declares the queue, applies the prefetch limit and streams
// deliveries with manual acknowledgement. The returned channel closes when ctx
// is done or the AMQP channel is closed by the broker.
func (b *Broker) Consume(ctx context.Context, queue string) (<-chan messaging.Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if err := DeclareQueue(ch, queue, b.opts.DeadLetterQueue(queue)); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare %s: %w", queue, err)
	}
	if err := ch.Qos(b.opts.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}
	tag := queue + "-" + uuid.NewString()
	msgs, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan messaging.Delivery)
	go b.pump(ctx, ch, tag, queue, msgs, out)
	return out, nil
}

// consumeChannel is the part of *amqp.Channel the consume loop drives.
type consumeChannel interface {
	Cancel(consumer string, noWait bool) error
	Close() error
}

// pump hands msgs to out until ctx is done. Deliveries already handed out are
// settled on ch, so ch stays open until every one of them was acked or nacked.
func (b *Broker) pump(ctx context.Context, ch consumeChannel, tag, queue string, msgs <-chan amqp.Delivery, out chan<- messaging.Delivery) {
	var inflight sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			close(out)
			b.stopConsuming(ch, tag, queue, msgs, &inflight)
			return
		case d, ok := <-msgs:
			if !ok {
				if b.logger != nil {
					b.logger.WithField("queue", queue).Warn("amqp delivery channel closed")
				}
				close(out)
				_ = ch.Close()
				return
			}
			inflight.Add(1)
			select {
			case out <- &delivery{broker: b, queue: queue, raw: d, done: inflight.Done}:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				inflight.Done()
				close(out)
				b.stopConsuming(ch, tag, queue, msgs, &inflight)
				return
			}
		}
	}
}

func (b *Broker) stopConsuming(ch consumeChannel, tag, queue string, msgs <-chan amqp.Delivery, inflight *sync.WaitGroup) {
	if err := ch.Cancel(tag, false); err != nil {
		if b.logger != nil {
			b.logger.WithError(err).WithField("queue", queue).Warn("amqp consumer cancel failed")
		}
	} else {
		// prefetched before the cancel reached the server; msgs closes once
		// the cancel is confirmed
		for d := range msgs {
			_ = d.Nack(false, true)
		}
	}
	inflight.Wait()
	_ = ch.Close()
}

type delivery struct {
	broker *Broker
	queue  string
	raw    amqp.Delivery

	done func()
	once sync.Once
}

// release tells the consume loop this delivery is settled.
func (d *delivery) release() {
	if d.done != nil {
		d.once.Do(d.done)
	}
}

func (d *delivery) Message() messaging.Message {
	headers := make(map[string]any, len(d.raw.Headers))
	for k, v := range d.raw.Headers {
		headers[k] = v
	}
	return messaging.Message{
		ID:          d.raw.MessageId,
		Type:        d.raw.Type,
		ContentType: d.raw.ContentType,
		Body:        d.raw.Body,
		Timestamp:   d.raw.Timestamp,
		Headers:     headers,
	}
}

func (d *delivery) Redelivered() bool { return d.raw.Redelivered }

func (d *delivery) Ack() error {
	defer d.release()
	return d.raw.Ack(false)
}

func (d *delivery) Retry() error {
	defer d.release()
	return d.raw.Nack(false, true)
}

// DeadLetter republishes the message to the dead-letter queue with the reason
// attached and acks the original. If that publish fails the message is
// rejected without requeue so the queue's dead-letter exchange still routes
// it, only without the reason header.
func (d *delivery) DeadLetter(ctx context.Context, reason string) error {
	defer d.release()
	msg := d.Message()
	msg.Headers[messaging.HeaderDeadLetterReason] = reason
	msg.Headers[messaging.HeaderOriginalQueue] = d.queue

	dlq := d.broker.opts.DeadLetterQueue(d.queue)
	if err := d.broker.publishRaw(ctx, dlq, msg); err != nil {
		if d.broker.logger != nil {
			d.broker.logger.WithError(err).WithField("queue", dlq).Warn("dead-letter publish failed, rejecting")
		}
		return d.raw.Nack(false, false)
	}
	return d.raw.Ack(false)
}
