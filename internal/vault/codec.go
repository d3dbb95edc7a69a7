// Package vault encrypts session records and log entries before they reach storage.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/msomdec/diabot/internal/domain"
)

// MinKeyMaterial is the minimum length of the configured key material.
const MinKeyMaterial = 32

const hkdfInfo = "diabot session record v1"

// Codec is a symmetric AEAD transform. Output layout is nonce || ciphertext.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// New derives the record key from keyMaterial with HKDF-SHA256.
func New(keyMaterial string) (*Codec, error) {
	if len(keyMaterial) < MinKeyMaterial {
		return nil, fmt.Errorf("%w: key material must be at least %d characters", domain.ErrInvalidInput, MinKeyMaterial)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(keyMaterial), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt. Truncated, tampered or foreign-key
// input returns an error wrapping domain.ErrUndecodable.
func (c *Codec) Decrypt(data []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(data) < ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", domain.ErrUndecodable, len(data))
	}
	plaintext, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUndecodable, err)
	}
	return plaintext, nil
}
