package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/command"
	repo "github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/messaging"
)

// Outcome is the terminal state of one delivery.
type Outcome string

const (
	OutcomeAcked      Outcome = "acked"
	OutcomeRetry      Outcome = "nacked_retry"
	OutcomeDeadLetter Outcome = "nacked_dead_letter"
)

// ConsumerConfig bounds the retry policy for transient failures.
type ConsumerConfig struct {
	MaxAttempts    int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MaxAttempts:    5,
		BaseRetryDelay: time.Second,
		MaxRetryDelay:  30 * time.Second,
	}
}

type commandHandler func(ctx context.Context, env command.Envelope) error

// CommandConsumer applies users-context commands pulled from the broker.
// Every delivery goes Received -> Deduplicating -> Applying and ends Acked,
// Nacked-Retry or Nacked-DeadLetter.
type CommandConsumer struct {
	Users    repo.UserRepository
	Hasher   Hasher
	Dedup    DedupStore
	Attempts AttemptTracker
	Hooks    []UserCreatedHook
	Logger   *logrus.Logger
	Config   ConsumerConfig
	Now      func() time.Time

	sleep    func(ctx context.Context, d time.Duration) error
	handlers map[command.Type]commandHandler
}

func NewCommandConsumer(users repo.UserRepository, hasher Hasher, dedup DedupStore, attempts AttemptTracker, logger *logrus.Logger, cfg ConsumerConfig, hooks ...UserCreatedHook) *CommandConsumer {
	c := &CommandConsumer{
		Users:    users,
		Hasher:   hasher,
		Dedup:    dedup,
		Attempts: attempts,
		Hooks:    hooks,
		Logger:   logger,
		Config:   cfg,
		Now:      time.Now,
		sleep:    sleepWithContext,
	}
	c.handlers = map[command.Type]commandHandler{
		command.TypeCreateUser:     c.applyCreateUser,
		command.TypeDeactivateUser: c.applyDeactivateUser,
	}
	return c
}

// Handle runs one delivery through the state machine and settles it with the
// broker. The returned outcome is what was reported to the broker.
func (c *CommandConsumer) Handle(ctx context.Context, d messaging.Delivery) Outcome {
	msg := d.Message()
	log := c.log().WithFields(logrus.Fields{
		"message_id":  msg.ID,
		"redelivered": d.Redelivered(),
	})

	env, err := command.Decode(msg.Body)
	if err != nil {
		return c.deadLetter(ctx, d, "", log, err)
	}
	log = log.WithFields(logrus.Fields{
		"command_id":   env.ID,
		"command_type": env.Type,
	})

	seen, err := c.Dedup.Seen(ctx, env.ID)
	if err != nil {
		return c.retry(ctx, d, env.ID, log, &TransientError{Op: "dedup lookup", Err: err})
	}
	if seen {
		log.Info("command already applied, acking without apply")
		return c.ack(d, log)
	}

	h, ok := c.handlers[env.Type]
	if !ok {
		return c.deadLetter(ctx, d, env.ID, log, fmt.Errorf("no handler for %s", env.Type))
	}

	err = h(ctx, env)
	switch {
	case err == nil:
		if mErr := c.Dedup.MarkApplied(ctx, env.ID); mErr != nil {
			log.WithError(mErr).Warn("mark command applied failed")
		}
		c.resetAttempts(ctx, env.ID, log)
		return c.ack(d, log)
	case IsPermanent(err):
		return c.deadLetter(ctx, d, env.ID, log, err)
	default:
		return c.retry(ctx, d, env.ID, log, err)
	}
}

func (c *CommandConsumer) ack(d messaging.Delivery, log *logrus.Entry) Outcome {
	if err := d.Ack(); err != nil {
		log.WithError(err).Error("ack failed")
	}
	log.WithField("outcome", OutcomeAcked).Info("command settled")
	return OutcomeAcked
}

func (c *CommandConsumer) retry(ctx context.Context, d messaging.Delivery, commandID string, log *logrus.Entry, cause error) Outcome {
	attempt, err := c.Attempts.Increment(ctx, commandID)
	if err != nil {
		// tracker down: a message that already came back once is escalated
		// instead of looping
		log.WithError(err).Warn("attempt tracker unavailable")
		attempt = 1
		if d.Redelivered() {
			attempt = c.Config.MaxAttempts
		}
	}
	log = log.WithField("attempt", attempt)

	if attempt >= c.Config.MaxAttempts {
		reason := fmt.Errorf("max attempts (%d) exceeded: %w", c.Config.MaxAttempts, cause)
		return c.deadLetter(ctx, d, commandID, log, reason)
	}

	delay := c.retryDelay(attempt)
	log.WithError(cause).WithField("retry_in", delay).Warn("transient failure, requeueing")
	if err := c.sleep(ctx, delay); err != nil {
		log.WithError(err).Debug("backoff interrupted")
	}
	if err := d.Retry(); err != nil {
		log.WithError(err).Error("nack for retry failed")
	}
	log.WithField("outcome", OutcomeRetry).Info("command settled")
	return OutcomeRetry
}

func (c *CommandConsumer) deadLetter(ctx context.Context, d messaging.Delivery, commandID string, log *logrus.Entry, cause error) Outcome {
	if err := d.DeadLetter(ctx, cause.Error()); err != nil {
		log.WithError(err).Error("dead-letter failed")
	}
	if commandID != "" {
		c.resetAttempts(ctx, commandID, log)
	}
	log.WithError(cause).WithField("outcome", OutcomeDeadLetter).Error("command settled")
	return OutcomeDeadLetter
}

func (c *CommandConsumer) resetAttempts(ctx context.Context, commandID string, log *logrus.Entry) {
	if err := c.Attempts.Reset(ctx, commandID); err != nil {
		log.WithError(err).Warn("reset attempts failed")
	}
}

// retryDelay is base * 2^(attempt-1), capped at MaxRetryDelay.
func (c *CommandConsumer) retryDelay(attempt int) time.Duration {
	delay := float64(c.Config.BaseRetryDelay) * math.Pow(2, float64(attempt-1))
	if c.Config.MaxRetryDelay > 0 && time.Duration(delay) > c.Config.MaxRetryDelay {
		return c.Config.MaxRetryDelay
	}
	return time.Duration(delay)
}

func (c *CommandConsumer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CommandConsumer) log() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
