package application

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/command"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/messaging"
)

// CommandPublisher turns commands into envelopes and hands them to the broker.
// It never retries: a failed publish is reported to the caller, who knows
// whether resubmitting is safe.
type CommandPublisher struct {
	Broker messaging.Publisher
	Queue  string
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewCommandPublisher(broker messaging.Publisher, queue string, logger *logrus.Logger) *CommandPublisher {
	return &CommandPublisher{Broker: broker, Queue: queue, Logger: logger, Now: time.Now}
}

// Publish returns the command id once the broker confirmed the message.
func (p *CommandPublisher) Publish(ctx context.Context, cmd command.Command) (string, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	env := command.NewEnvelope(cmd, now())
	body, err := command.Encode(env)
	if err != nil {
		return "", &PublishFailedError{CommandType: env.Type, Err: err}
	}

	msg := messaging.Message{
		ID:          env.ID,
		Type:        string(env.Type),
		ContentType: command.ContentType,
		Body:        body,
		Timestamp:   env.CreatedAt,
	}
	if err := p.Broker.Publish(ctx, p.Queue, msg); err != nil {
		if p.Logger != nil {
			p.Logger.WithError(err).WithFields(logrus.Fields{
				"command_id":   env.ID,
				"command_type": env.Type,
				"queue":        p.Queue,
			}).Error("publish command failed")
		}
		return "", &PublishFailedError{CommandType: env.Type, Err: err}
	}

	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"command_id":   env.ID,
			"command_type": env.Type,
			"queue":        p.Queue,
		}).Info("command published")
	}
	return env.ID, nil
}
