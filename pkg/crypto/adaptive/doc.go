// Package adaptive provides authenticated encryption that picks its
// algorithm from the platform: AES-256-GCM where the CPU accelerates AES,
// ChaCha20-Poly1305 elsewhere.
//
// Ciphertexts carry their random nonce as a prefix. Keys for a specific
// purpose are derived from a shared secret with DeriveKey (HKDF-SHA256).
//
//	key, _ := adaptive.DeriveKey([]byte(passphrase), salt, "fidloc queue v1", adaptive.KeySize)
//	c, _ := adaptive.New(key)
//	sealed, _ := c.Encrypt(plaintext, aad)
//	plaintext, _ = c.Decrypt(sealed, aad)
package adaptive
