package application

import (
	"context"
	"errors"
	"strings"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
	repo "github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
)

const (
	defaultSearchSize = 10
	maxSearchSize     = 50
)

// UserQueries is the read side of the users context. It never mutates state.
type UserQueries struct {
	Repo   repo.UserRepository
	Search UserSearcher
}

func NewUserQueries(r repo.UserRepository, search UserSearcher) *UserQueries {
	return &UserQueries{Repo: r, Search: search}
}

func (q *UserQueries) GetUser(ctx context.Context, id string) (*entity.User, error) {
	u, err := q.Repo.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (q *UserQueries) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	u, err := q.Repo.GetByEmail(ctx, entity.NormalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// SearchUsers queries the search projection. Without one configured it
// returns an empty result.
func (q *UserQueries) SearchUsers(ctx context.Context, query string, size int) ([]map[string]any, error) {
	query = strings.TrimSpace(query)
	if q.Search == nil || query == "" {
		return []map[string]any{}, nil
	}
	switch {
	case size <= 0:
		size = defaultSearchSize
	case size > maxSearchSize:
		size = maxSearchSize
	}
	return q.Search.SearchUsers(ctx, query, size)
}
