package offline

import (
	"bytes"
	"context"
	"errors"

	"github.com/fidloc/fidloc-go/internal/storage"
	"github.com/fidloc/fidloc-go/pkg/crypto/adaptive"
	"github.com/fidloc/fidloc-go/pkg/token"
)

const (
	saltKey   = "meta/queue/salt"
	checkKey  = "meta/queue/check"
	kdfInfo   = "fidloc queue v1"
	checkText = "fidloc-queue"
)

// ErrWrongPassphrase is returned when the passphrase does not open an
// existing encrypted queue.
var ErrWrongPassphrase = errors.New("offline: queue passphrase does not match")

// OpenCipher derives the queue cipher from passphrase. The first call on
// a database stores a random salt and a check value; later calls verify
// the passphrase against the check value.
func OpenCipher(ctx context.Context, kv storage.KVEngine, passphrase string) (adaptive.Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("offline: empty queue passphrase")
	}

	var c adaptive.Cipher
	err := kv.Update(ctx, func(txn storage.Txn) error {
		salt, err := txn.Get([]byte(saltKey))
		fresh := errors.Is(err, storage.ErrKeyNotFound)
		switch {
		case fresh:
			salt, err = token.GenerateBytes(adaptive.SaltSize)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		}

		key, err := adaptive.DeriveKey([]byte(passphrase), salt, kdfInfo, adaptive.KeySize)
		if err != nil {
			return err
		}
		// Pin the algorithm so a database moved between platforms still opens.
		c, err = adaptive.NewWithType(key, adaptive.CipherChaCha20)
		if err != nil {
			return err
		}

		if fresh {
			check, err := c.Encrypt([]byte(checkText), []byte(checkKey))
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(saltKey), salt); err != nil {
				return err
			}
			return txn.Set([]byte(checkKey), check)
		}

		check, err := txn.Get([]byte(checkKey))
		if err != nil {
			return err
		}
		plain, err := c.Decrypt(check, []byte(checkKey))
		if err != nil || !bytes.Equal(plain, []byte(checkText)) {
			return ErrWrongPassphrase
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
