// Package crypto defines the encryption gateway used to protect secure data
// at rest. Ciphertext is bound to the logical path it was written under, so
// data encrypted for one path can never be silently substituted for another.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length expected by the local gateway.
const KeySize = 32

// ErrDecrypt is returned when ciphertext fails to decrypt: wrong path
// binding, corruption, or tampering. It is fatal for the calling operation
// and must never be interpreted as "not found".
var ErrDecrypt = errors.New("failed to decrypt secure data")

// Gateway encrypts and decrypts plaintext under a path-scoped binding.
// Decrypting with a different path than the one used at encryption time
// must fail, not return garbage.
type Gateway interface {
	Encrypt(ctx context.Context, plaintext, path string) (string, error)
	Decrypt(ctx context.Context, ciphertext, path string) (string, error)
}

// LocalGateway implements Gateway with AES-256-GCM, binding the path as GCM
// additional authenticated data. Ciphertext is base64(nonce || sealed).
// Intended for local development and tests; production deployments use the
// KMS-backed gateway.
type LocalGateway struct {
	aead cipher.AEAD
}

// NewLocalGateway creates a LocalGateway from a raw 32-byte AES key.
func NewLocalGateway(key []byte) (*LocalGateway, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &LocalGateway{aead: aead}, nil
}

// Encrypt seals the plaintext with the path as authenticated data.
func (g *LocalGateway) Encrypt(_ context.Context, plaintext, path string) (string, error) {
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := g.aead.Seal(nonce, nonce, []byte(plaintext), []byte(path))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens the ciphertext using the path as authenticated data.
// Any mismatch surfaces as ErrDecrypt.
func (g *LocalGateway) Decrypt(_ context.Context, ciphertext, path string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext encoding", ErrDecrypt)
	}
	nonceSize := g.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := g.aead.Open(nil, nonce, sealed, []byte(path))
	if err != nil {
		return "", fmt.Errorf("%w: path %q", ErrDecrypt, path)
	}
	return string(plaintext), nil
}
