package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// KeySize is the key length used by both algorithms.
const KeySize = 32

// ErrCiphertextTooShort is returned when the input cannot hold a nonce.
var ErrCiphertextTooShort = errors.New("adaptive: ciphertext too short")

// Cipher provides authenticated encryption.
type Cipher interface {
	// Type returns the cipher type.
	Type() CipherType

	// Encrypt seals plaintext, binding additionalData.
	Encrypt(plaintext, additionalData []byte) ([]byte, error)

	// Decrypt opens ciphertext produced by Encrypt with the same additionalData.
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)

	// Overhead returns the bytes added to each plaintext.
	Overhead() int
}

// New creates a cipher for the current platform.
func New(key []byte) (Cipher, error) {
	return NewWithType(key, Preferred())
}

// Preferred returns the cipher type New selects on this platform.
func Preferred() CipherType {
	// Go uses AES hardware instructions on amd64, arm64 and s390x.
	switch runtime.GOARCH {
	case "amd64", "arm64", "s390x":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

// NewWithType creates a cipher of the specified type.
func NewWithType(key []byte, t CipherType) (Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("adaptive: key must be %d bytes, got %d", KeySize, len(key))
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch t {
	case CipherAESGCM:
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case CipherChaCha20:
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("adaptive: unknown cipher type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("adaptive: %s: %w", t, err)
	}

	return &aeadCipher{typ: t, aead: aead}, nil
}

type aeadCipher struct {
	typ  CipherType
	aead cipher.AEAD
}

func (c *aeadCipher) Type() CipherType {
	return c.typ
}

func (c *aeadCipher) Overhead() int {
	return c.aead.NonceSize() + c.aead.Overhead()
}

func (c *aeadCipher) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (c *aeadCipher) Decrypt(ciphertext, additionalData []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns+c.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	return c.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], additionalData)
}
