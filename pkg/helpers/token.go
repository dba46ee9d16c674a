package helpers

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// RandomMinter mints opaque tokens from crypto/rand, URL-safe base64 without
// padding.
type RandomMinter struct {
	Bytes int
}

func NewRandomMinter() RandomMinter {
	return RandomMinter{Bytes: 32}
}

func (m RandomMinter) Mint(_ string, _, _ time.Time) (string, error) {
	n := m.Bytes
	if n <= 0 {
		n = 32
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
