package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
	repo "github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
)

// DefaultTokenTTL is the lifetime of an issued token.
const DefaultTokenTTL = time.Hour

// Reasons reported by ValidateToken when a token is not valid.
const (
	ReasonUnknown = "unknown"
	ReasonExpired = "expired"
	ReasonRevoked = "revoked"
)

// IssuedToken is what a successful login returns.
type IssuedToken struct {
	Value     string
	UserID    string
	ExpiresAt time.Time
}

// ValidationResult is the answer to "is this token usable right now".
// UserID and ExpiresAt are only set when IsValid is true.
type ValidationResult struct {
	IsValid   bool
	UserID    string
	ExpiresAt time.Time
	Reason    string
}

// TokenService implements the auth context: password login, token validation
// and revocation. It reads user credentials through UsersGateway and never
// touches the users repository directly.
type TokenService struct {
	Users  UsersGateway
	Tokens repo.TokenRepository
	Hasher Hasher
	Minter TokenMinter
	TTL    time.Duration
	Logger *logrus.Logger
	Now    func() time.Time

	// Verifier is set from Minter when it can check signatures.
	Verifier TokenVerifier
}

func NewTokenService(users UsersGateway, tokens repo.TokenRepository, hasher Hasher, minter TokenMinter, ttl time.Duration, logger *logrus.Logger) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{
		Users:  users,
		Tokens: tokens,
		Hasher: hasher,
		Minter: minter,
		TTL:    ttl,
		Logger: logger,
		Now:    time.Now,
	}
	if v, ok := minter.(TokenVerifier); ok {
		s.Verifier = v
	}
	return s
}

// IssueToken checks the credentials and stores a fresh token. Unknown email,
// wrong password and deactivated users all yield ErrInvalidCredentials.
func (s *TokenService) IssueToken(ctx context.Context, email, password string) (*IssuedToken, error) {
	u, err := s.Users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive() || !s.Hasher.Verify(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	// Postgres keeps microseconds; the returned expiry must match the stored one
	issuedAt := s.now().UTC().Truncate(time.Microsecond)
	value, err := s.Minter.Mint(u.ID, issuedAt, issuedAt.Add(s.TTL))
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}
	t, err := entity.NewToken(u.ID, value, issuedAt, s.TTL)
	if err != nil {
		return nil, err
	}
	if err := s.Tokens.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	s.log().WithFields(logrus.Fields{
		"user_id":    u.ID,
		"token_id":   t.ID,
		"expires_at": t.ExpiresAt,
	}).Info("token issued")
	return &IssuedToken{Value: t.Value, UserID: t.UserID, ExpiresAt: t.ExpiresAt}, nil
}

// ValidateToken never fails for an unusable token; it reports why instead.
// Errors are storage failures only.
func (s *TokenService) ValidateToken(ctx context.Context, value string) (ValidationResult, error) {
	if value == "" {
		return ValidationResult{Reason: ReasonUnknown}, nil
	}
	if s.Verifier != nil && s.Verifier.VerifySignature(value) != nil {
		return ValidationResult{Reason: ReasonUnknown}, nil
	}
	t, err := s.Tokens.GetByValue(ctx, value)
	if errors.Is(err, repo.ErrNotFound) {
		return ValidationResult{Reason: ReasonUnknown}, nil
	}
	if err != nil {
		return ValidationResult{}, fmt.Errorf("load token: %w", err)
	}

	switch {
	case t.Revoked:
		return ValidationResult{Reason: ReasonRevoked}, nil
	case t.ExpiredAt(s.now()):
		return ValidationResult{Reason: ReasonExpired}, nil
	}
	return ValidationResult{IsValid: true, UserID: t.UserID, ExpiresAt: t.ExpiresAt}, nil
}

// RevokeToken is idempotent for known tokens. Unknown values yield
// ErrTokenInvalid.
func (s *TokenService) RevokeToken(ctx context.Context, value string) error {
	if value == "" {
		return ErrTokenInvalid
	}
	err := s.Tokens.Revoke(ctx, value, s.now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.log().Info("token revoked")
	return nil
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) log() *logrus.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}
