package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// UserRepository defines the storage port of the users context.
// Implementations must enforce email uniqueness themselves; callers rely on
// ErrDuplicateEmail rather than check-then-insert.
type UserRepository interface {
	// Create inserts u and assigns u.ID, u.CreatedAt and u.UpdatedAt.
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	// Deactivate stamps DeactivatedAt once; deactivating twice is a no-op.
	Deactivate(ctx context.Context, id string, at time.Time) error
}
