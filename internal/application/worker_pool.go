package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/messaging"
)

// WorkerPool runs Concurrency consumers against one queue subscription.
// Ordering across commands is not guaranteed once Concurrency > 1.
type WorkerPool struct {
	Subscriber  messaging.Subscriber
	Queue       string
	Consumer    *CommandConsumer
	Concurrency int
	Logger      *logrus.Logger
}

func NewWorkerPool(sub messaging.Subscriber, queue string, consumer *CommandConsumer, concurrency int, logger *logrus.Logger) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerPool{
		Subscriber:  sub,
		Queue:       queue,
		Consumer:    consumer,
		Concurrency: concurrency,
		Logger:      logger,
	}
}

// Run blocks until ctx is cancelled or the subscription closes. In-flight
// deliveries finish before Run returns. A subscription closed under a live ctx
// yields ErrSubscriptionClosed so the process can exit and be restarted.
func (p *WorkerPool) Run(ctx context.Context) error {
	deliveries, err := p.Subscriber.Consume(ctx, p.Queue)
	if err != nil {
		return fmt.Errorf("consume %s: %w", p.Queue, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < p.Concurrency; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, workerID, deliveries)
		}()
	}
	p.log().WithFields(logrus.Fields{"queue": p.Queue, "workers": p.Concurrency}).Info("worker pool started")

	wg.Wait()
	if err := ctx.Err(); err != nil {
		p.log().WithField("queue", p.Queue).Info("worker pool stopped")
		return err
	}
	p.log().WithField("queue", p.Queue).Error("worker pool lost its subscription")
	return ErrSubscriptionClosed
}

func (p *WorkerPool) work(ctx context.Context, workerID string, deliveries <-chan messaging.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				p.log().WithField("worker", workerID).Warn("delivery channel closed")
				return
			}
			// settle the delivery even if shutdown starts mid-apply
			p.Consumer.Handle(context.WithoutCancel(ctx), d)
		}
	}
}

func (p *WorkerPool) log() *logrus.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logrus.StandardLogger()
}
