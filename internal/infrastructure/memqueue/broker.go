// Package memqueue is an in-process broker with the same delivery semantics
// as the RabbitMQ adapter: at-least-once, explicit settlement, requeue on
// retry and a per-queue dead-letter queue.
package memqueue

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/messaging"
)

const defaultCapacity = 1024

var (
	ErrQueueFull      = errors.New("memqueue: queue full")
	ErrClosed         = errors.New("memqueue: broker closed")
	ErrAlreadySettled = errors.New("memqueue: delivery already settled")
)

type item struct {
	msg         messaging.Message
	redelivered bool
}

// fifo is an unbounded queue. Capacity is enforced on Publish only, so a
// message that was already accepted is never lost to a requeue.
type fifo struct {
	mu    sync.Mutex
	items []item
	ready chan struct{}
}

func newFifo() *fifo {
	return &fifo{ready: make(chan struct{}, 1)}
}

func (q *fifo) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// push appends it unless limit > 0 and the queue already holds limit items.
func (q *fifo) push(it item, limit int) bool {
	q.mu.Lock()
	if limit > 0 && len(q.items) >= limit {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, it)
	q.mu.Unlock()
	q.signal()
	return true
}

// unshift puts it back at the head, for a message that was never handed out.
func (q *fifo) unshift(it item) {
	q.mu.Lock()
	q.items = append([]item{it}, q.items...)
	q.mu.Unlock()
	q.signal()
}

func (q *fifo) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	q.items[0] = item{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// wake another consumer for the rest
		q.signal()
	}
	return it, true
}

func (q *fifo) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type Broker struct {
	capacity int

	mu     sync.Mutex
	queues map[string]*fifo
	closed bool
}

func NewBroker(capacity int) *Broker {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Broker{capacity: capacity, queues: make(map[string]*fifo)}
}

var (
	_ messaging.Publisher  = (*Broker)(nil)
	_ messaging.Subscriber = (*Broker)(nil)
)

// queue returns the named queue. Settlement of in-flight deliveries keeps
// working after Close, so only publishers and new consumers check closed.
func (b *Broker) queue(name string) *fifo {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = newFifo()
		b.queues[name] = q
	}
	return q
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Publish stores msg in queue. A full queue is reported immediately rather
// than blocking the publisher.
func (b *Broker) Publish(ctx context.Context, queue string, msg messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.isClosed() {
		return ErrClosed
	}
	msg.Headers = maps.Clone(msg.Headers)
	if !b.queue(queue).push(item{msg: msg}, b.capacity) {
		return ErrQueueFull
	}
	return nil
}

func (b *Broker) Consume(ctx context.Context, queue string) (<-chan messaging.Delivery, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	q := b.queue(queue)
	out := make(chan messaging.Delivery)
	go func() {
		defer close(out)
		for {
			it, ok := q.pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-q.ready:
					continue
				}
			}
			d := &delivery{broker: b, queue: queue, item: it}
			select {
			case out <- d:
			case <-ctx.Done():
				q.unshift(it)
				return
			}
		}
	}()
	return out, nil
}

// Len reports how many messages wait in queue.
func (b *Broker) Len(queue string) int {
	return b.queue(queue).len()
}

// Drain removes and returns every message waiting in queue. It is how
// operators and tests inspect a dead-letter queue.
func (b *Broker) Drain(queue string) []messaging.Message {
	q := b.queue(queue)
	var out []messaging.Message
	for {
		it, ok := q.pop()
		if !ok {
			return out
		}
		out = append(out, it.msg)
	}
}

// Close makes further publishes and subscriptions fail. Waiting messages are
// kept and in-flight deliveries can still be settled.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

type delivery struct {
	broker *Broker
	queue  string
	item   item

	mu      sync.Mutex
	settled bool
}

func (d *delivery) Message() messaging.Message { return d.item.msg }
func (d *delivery) Redelivered() bool          { return d.item.redelivered }

func (d *delivery) settle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return ErrAlreadySettled
	}
	d.settled = true
	return nil
}

func (d *delivery) Ack() error {
	return d.settle()
}

// Retry puts the message back at the tail, past the publish capacity.
func (d *delivery) Retry() error {
	if err := d.settle(); err != nil {
		return err
	}
	it := d.item
	it.redelivered = true
	d.broker.queue(d.queue).push(it, 0)
	return nil
}

// DeadLetter moves the message to the dead-letter queue, which has no
// capacity limit.
func (d *delivery) DeadLetter(_ context.Context, reason string) error {
	if err := d.settle(); err != nil {
		return err
	}
	msg := d.item.msg
	msg.Headers = maps.Clone(msg.Headers)
	if msg.Headers == nil {
		msg.Headers = map[string]any{}
	}
	msg.Headers[messaging.HeaderDeadLetterReason] = reason
	msg.Headers[messaging.HeaderOriginalQueue] = d.queue
	d.broker.queue(messaging.DeadLetterQueue(d.queue)).push(item{msg: msg}, 0)
	return nil
}
