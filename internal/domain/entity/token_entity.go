package entity

import (
	"errors"
	"time"
)

var ErrTokenWindow = errors.New("token expires_at must be after issued_at")

// Token is a bearer credential issued by the auth context.
// Rows are append-only; the only mutation is flipping Revoked.
type Token struct {
	ID        string
	UserID    string
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

func NewToken(userID, value string, issuedAt time.Time, ttl time.Duration) (*Token, error) {
	issuedAt = issuedAt.UTC()
	expiresAt := issuedAt.Add(ttl)
	if !expiresAt.After(issuedAt) {
		return nil, ErrTokenWindow
	}
	return &Token{
		UserID:    userID,
		Value:     value,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// ExpiredAt reports whether the token is expired at now. Expiry is exclusive
// of validity: a token is already expired exactly at ExpiresAt.
func (t *Token) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
