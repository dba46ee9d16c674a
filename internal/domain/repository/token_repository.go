package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
)

// ErrDuplicateToken means a minted value collided with a stored one.
var ErrDuplicateToken = errors.New("token value already exists")

// TokenRepository defines the storage port of the auth context.
type TokenRepository interface {
	// Create inserts t and assigns t.ID.
	Create(ctx context.Context, t *entity.Token) error
	GetByValue(ctx context.Context, value string) (*entity.Token, error)
	// Revoke flips revoked to true. Revoking an already revoked token keeps
	// the first RevokedAt and returns nil. Unknown values return ErrNotFound.
	Revoke(ctx context.Context, value string, at time.Time) error
}
