// Package rabbitmq is the AMQP 0-9-1 implementation of the messaging port.
// Queues are durable, messages persistent, publishes confirmed and every
// work queue has a dead-letter queue bound through the default exchange.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Dial connects to url, retrying up to attempts times with delay between
// tries. The broker is often still starting when the services boot.
func Dial(ctx context.Context, url string, attempts int, delay time.Duration, logger *logrus.Logger) (*amqp.Connection, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		if logger != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"attempt":  i,
				"attempts": attempts,
			}).Warn("rabbitmq connect failed")
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("connect rabbitmq after %d attempts: %w", attempts, err)
}
