package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
	repo "github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
)

// UsersGateway is everything the auth context needs from the users context.
type UsersGateway interface {
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	// Register creates a user and returns it. A taken email yields
	// repo.ErrDuplicateEmail.
	Register(ctx context.Context, name, email, password string) (*entity.User, error)
}

// DirectUsersGateway reads and writes the users repository in-process.
//
// Register is a synchronous write that bypasses the command queue so the
// caller can log in right away. It is the one place where the auth context
// writes users; replacing it with a published CreateUser command only needs a
// new UsersGateway.
type DirectUsersGateway struct {
	Users  repo.UserRepository
	Hasher Hasher
	Logger *logrus.Logger
}

func NewDirectUsersGateway(users repo.UserRepository, hasher Hasher, logger *logrus.Logger) *DirectUsersGateway {
	return &DirectUsersGateway{Users: users, Hasher: hasher, Logger: logger}
}

func (g *DirectUsersGateway) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	u, err := g.Users.GetByEmail(ctx, entity.NormalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (g *DirectUsersGateway) Register(ctx context.Context, name, email, password string) (*entity.User, error) {
	u, err := entity.NewUser(name, email, password)
	if err != nil {
		return nil, err
	}
	hash, err := g.Hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	// a synthetic source id keeps every row traceable to exactly one write
	u.SourceCommandID = "register:" + uuid.NewString()

	if err := g.Users.Create(ctx, u); err != nil {
		return nil, err
	}
	if g.Logger != nil {
		g.Logger.WithFields(logrus.Fields{"user_id": u.ID, "email": u.Email}).Info("user registered")
	}
	return u, nil
}
