package application

import (
	"context"
	"time"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
)

// Hasher is a one-way password hashing capability.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// TokenMinter produces unguessable bearer token values.
type TokenMinter interface {
	Mint(userID string, issuedAt, expiresAt time.Time) (string, error)
}

// TokenVerifier is implemented by minters whose values carry a signature.
// TokenService uses it to drop forged values before touching the store.
type TokenVerifier interface {
	VerifySignature(value string) error
}

// DedupStore remembers command ids that were already applied. It is an
// optimisation in front of the repository uniqueness constraint.
type DedupStore interface {
	Seen(ctx context.Context, commandID string) (bool, error)
	MarkApplied(ctx context.Context, commandID string) error
}

// AttemptTracker counts failed apply attempts per command id across
// redeliveries.
type AttemptTracker interface {
	Increment(ctx context.Context, commandID string) (int, error)
	Reset(ctx context.Context, commandID string) error
}

// UserCreatedHook runs after a user row was inserted by the worker. Hooks are
// best effort and never affect the command outcome.
type UserCreatedHook interface {
	UserCreated(ctx context.Context, u *entity.User) error
}

// UserSearcher is the read-side search projection.
type UserSearcher interface {
	SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error)
}
