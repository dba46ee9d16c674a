package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/command"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
	repo "github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
)

func (c *CommandConsumer) applyCreateUser(ctx context.Context, env command.Envelope) error {
	cmd, ok := env.Payload.(command.CreateUser)
	if !ok {
		return &command.DecodeError{Reason: fmt.Sprintf("payload is not %s", command.TypeCreateUser)}
	}

	u, err := entity.NewUser(cmd.Name, cmd.Email, cmd.Password)
	if err != nil {
		return err
	}
	hash, err := c.Hasher.Hash(cmd.Password)
	if err != nil {
		return &TransientError{Op: "hash password", Err: err}
	}
	u.PasswordHash = hash
	u.SourceCommandID = env.ID

	err = c.Users.Create(ctx, u)
	if errors.Is(err, repo.ErrDuplicateEmail) {
		return c.resolveDuplicate(ctx, env.ID, u.Email)
	}
	if err != nil {
		return &TransientError{Op: "create user", Err: err}
	}

	c.runCreatedHooks(ctx, u)
	return nil
}

// resolveDuplicate tells a redelivery of the command that already created the
// user apart from a different command racing for the same email.
func (c *CommandConsumer) resolveDuplicate(ctx context.Context, commandID, email string) error {
	existing, err := c.Users.GetByEmail(ctx, email)
	if err != nil {
		return &TransientError{Op: "load existing user", Err: err}
	}
	if existing.SourceCommandID == commandID {
		c.log().WithFields(logrus.Fields{
			"command_id": commandID,
			"user_id":    existing.ID,
		}).Info("user already created by this command")
		return nil
	}
	return &ConflictError{CommandID: commandID, Email: email}
}

func (c *CommandConsumer) applyDeactivateUser(ctx context.Context, env command.Envelope) error {
	cmd, ok := env.Payload.(command.DeactivateUser)
	if !ok {
		return &command.DecodeError{Reason: fmt.Sprintf("payload is not %s", command.TypeDeactivateUser)}
	}
	if cmd.UserID == "" {
		return &entity.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	err := c.Users.Deactivate(ctx, cmd.UserID, c.now().UTC())
	if isNotFound(err) {
		return &entity.ValidationError{Field: "user_id", Reason: "unknown user"}
	}
	if err != nil {
		return &TransientError{Op: "deactivate user", Err: err}
	}
	return nil
}

func (c *CommandConsumer) runCreatedHooks(ctx context.Context, u *entity.User) {
	for _, h := range c.Hooks {
		if err := h.UserCreated(ctx, u); err != nil {
			c.log().WithError(err).WithField("user_id", u.ID).Warn("user created hook failed")
		}
	}
}
