package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"pastad/internal/security"
)

// ErrDecrypt is returned when an encrypted row cannot be opened with the
// current key. It usually means the key file was replaced out of band.
var ErrDecrypt = errors.New("store: cannot decrypt content")

// atRestLabel separates the at-rest key from other keys derived from the
// same master key.
const atRestLabel = "history-at-rest"

// newAEAD derives the at-rest cipher from the master key.
func newAEAD(masterKey []byte) (cipher.AEAD, error) {
	key, err := security.DeriveKey(masterKey, atRestLabel, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive at-rest key: %w", err)
	}
	return chacha20poly1305.New(key)
}

// sealContent encrypts plaintext and encodes nonce||ciphertext as base64
// so it can live in a TEXT column next to plaintext rows.
func sealContent(aead cipher.AEAD, plaintext string) (string, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// openContent reverses sealContent.
func openContent(aead cipher.AEAD, encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", ErrDecrypt
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
