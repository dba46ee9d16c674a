package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
	repo "github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
)

type TokenRepository struct {
	mu      sync.RWMutex
	byValue map[string]*entity.Token
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{byValue: make(map[string]*entity.Token)}
}

var _ repo.TokenRepository = (*TokenRepository)(nil)

func (r *TokenRepository) Create(_ context.Context, t *entity.Token) error {
	if !t.ExpiresAt.After(t.IssuedAt) {
		return entity.ErrTokenWindow
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byValue[t.Value]; exists {
		return repo.ErrDuplicateToken
	}
	t.ID = uuid.NewString()
	stored := *t
	r.byValue[t.Value] = &stored
	return nil
}

func (r *TokenRepository) GetByValue(_ context.Context, value string) (*entity.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byValue[value]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TokenRepository) Revoke(_ context.Context, value string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byValue[value]
	if !ok {
		return repo.ErrNotFound
	}
	if t.Revoked {
		return nil
	}
	at = at.UTC()
	t.Revoked = true
	t.RevokedAt = &at
	return nil
}
