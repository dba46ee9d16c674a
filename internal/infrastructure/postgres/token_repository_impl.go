package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
)

type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

var _ repository.TokenRepository = (*TokenRepository)(nil)

func (r *TokenRepository) Create(ctx context.Context, t *entity.Token) error {
	if !t.ExpiresAt.After(t.IssuedAt) {
		return entity.ErrTokenWindow
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tokens (user_id, value, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, t.UserID, t.Value, t.IssuedAt, t.ExpiresAt).Scan(&t.ID)
	if err != nil {
		if _, c := pgCode(err); c == constraintTokensValue {
			return repository.ErrDuplicateToken
		}
		return err
	}
	return nil
}

func (r *TokenRepository) GetByValue(ctx context.Context, value string) (*entity.Token, error) {
	t := &entity.Token{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, value, issued_at, expires_at, revoked, revoked_at
		FROM tokens
		WHERE value = $1
	`, value).Scan(&t.ID, &t.UserID, &t.Value, &t.IssuedAt, &t.ExpiresAt, &t.Revoked, &t.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// Revoke keeps the first revocation time when called again.
func (r *TokenRepository) Revoke(ctx context.Context, value string, at time.Time) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE tokens
		SET revoked = TRUE, revoked_at = COALESCE(revoked_at, $2)
		WHERE value = $1
	`, value, at.UTC())
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
