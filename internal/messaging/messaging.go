// Package messaging is the narrow broker port shared by the command publisher
// and the command worker. Publisher and worker never share memory; everything
// between them goes through a broker implementing these interfaces.
package messaging

import (
	"context"
	"time"
)

// Header keys set on dead-lettered messages.
const (
	HeaderDeadLetterReason = "x-dead-letter-reason"
	HeaderOriginalQueue    = "x-original-queue"
)

// DeadLetterQueue returns the per-queue dead-letter queue name.
func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

type Message struct {
	ID          string
	Type        string
	ContentType string
	Body        []byte
	Timestamp   time.Time
	Headers     map[string]any
}

// Publisher hands messages to the broker. Publish blocks until the broker has
// confirmed it stored the message persistently, or returns an error.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
}

// Subscriber streams deliveries of a queue until ctx is cancelled.
type Subscriber interface {
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
}

// Delivery is an in-flight message. Exactly one of Ack, Retry or DeadLetter
// must be called; until then the broker redelivers it if the consumer dies.
type Delivery interface {
	Message() Message
	Redelivered() bool
	Ack() error
	// Retry returns the message to its queue for another attempt.
	Retry() error
	// DeadLetter moves the message to the dead-letter queue with a reason.
	// It is terminal: the message is never retried automatically again.
	DeadLetter(ctx context.Context, reason string) error
}
