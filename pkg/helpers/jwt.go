package helpers

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTMinter mints HS256 tokens carrying the user id. The signature only makes
// the value self-describing; validity is still decided by the token store, so
// a revoked JWT is rejected even when its signature checks out.
type JWTMinter struct {
	Secret []byte
}

func NewJWTMinter(secret string) *JWTMinter {
	return &JWTMinter{Secret: []byte(secret)}
}

type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

func (m *JWTMinter) Mint(userID string, issuedAt, expiresAt time.Time) (string, error) {
	if len(m.Secret) == 0 {
		return "", errors.New("jwt minter: empty secret")
	}
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.Secret)
}

// Parse verifies the signature of tokenStr and returns its claims. Expiry is
// not checked here; the token store decides expiry and revocation.
func (m *JWTMinter) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.Secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// VerifySignature rejects values this minter did not sign.
func (m *JWTMinter) VerifySignature(value string) error {
	_, err := m.Parse(value)
	return err
}
