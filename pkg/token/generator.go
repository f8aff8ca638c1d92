package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// DefaultLength is the default token length in bytes.
const DefaultLength = 32

// Generate returns DefaultLength random bytes, Base64 RawURL encoded.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength returns length random bytes, Base64 RawURL encoded.
func GenerateWithLength(length int) (string, error) {
	b, err := GenerateBytes(length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateWithPrefix returns prefix followed by a random token.
func GenerateWithPrefix(prefix string, length int) (string, error) {
	t, err := GenerateWithLength(length)
	if err != nil {
		return "", err
	}
	return prefix + t, nil
}

// GenerateBytes returns length random bytes.
func GenerateBytes(length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("token: length must be positive, got %d", length)
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
