package adaptive

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SaltSize is the recommended DeriveKey salt length.
const SaltSize = 16

// DeriveKey expands secret into a size-byte key bound to info.
// Different info strings give independent keys from one secret.
func DeriveKey(secret, salt []byte, info string, size int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("adaptive: empty secret")
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}
