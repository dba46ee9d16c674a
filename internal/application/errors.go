package application

import (
	"errors"
	"fmt"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/command"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
	repo "github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
)

// Expected negative outcomes. Callers branch on them with errors.Is; they are
// not system faults.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrUserNotFound       = errors.New("user not found")
)

// ErrSubscriptionClosed is returned by WorkerPool.Run when the broker closed
// the delivery stream while the pool was still meant to run.
var ErrSubscriptionClosed = errors.New("subscription closed by broker")

// PublishFailedError means the broker did not confirm a command. The command
// may or may not have been stored; the caller decides whether to publish again.
type PublishFailedError struct {
	CommandType command.Type
	Err         error
}

func (e *PublishFailedError) Error() string {
	return fmt.Sprintf("publish %s failed: %v", e.CommandType, e.Err)
}

func (e *PublishFailedError) Unwrap() error { return e.Err }

// TransientError wraps an infrastructure failure during apply. The worker
// retries it with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// ConflictError is a duplicate email caused by a different command than the
// one that created the stored user.
type ConflictError struct {
	CommandID string
	Email     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("command %s conflicts with existing user %s", e.CommandID, e.Email)
}

func (e *ConflictError) Unwrap() error { return repo.ErrDuplicateEmail }

// IsPermanent reports whether err can never succeed on retry.
func IsPermanent(err error) bool {
	var (
		de *command.DecodeError
		ve *entity.ValidationError
		ce *ConflictError
	)
	return errors.As(err, &de) || errors.As(err, &ve) || errors.As(err, &ce)
}
