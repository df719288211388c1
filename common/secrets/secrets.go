// Package secrets encrypts integration secrets (api keys, webhook secrets,
// SMTP passwords) before they are written into app instance data.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const prefix = "enc:v1:"

var ErrInvalidKey = errors.New("secrets key must be 32 bytes, base64 encoded")

// Cipher seals and opens secret strings with AES-256-GCM.
type Cipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(value string) (string, error)
}

type gcmCipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a base64 encoded 32 byte key. An empty key
// yields a passthrough cipher for development.
func New(encodedKey string) (Cipher, error) {
	encodedKey = strings.TrimSpace(encodedKey)
	if encodedKey == "" {
		return plainCipher{}, nil
	}

	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &gcmCipher{aead: aead}, nil
}

func (c *gcmCipher) Encrypt(plain string) (string, error) {
	if plain == "" || strings.HasPrefix(plain, prefix) {
		return plain, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("reading nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return prefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values without the envelope
// prefix are returned as-is so rows written before a key was configured
// keep working.
func (c *gcmCipher) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", fmt.Errorf("decoding secret: %w", err)
	}
	size := c.aead.NonceSize()
	if len(raw) < size {
		return "", errors.New("secret ciphertext too short")
	}
	plain, err := c.aead.Open(nil, raw[:size], raw[size:], nil)
	if err != nil {
		return "", fmt.Errorf("opening secret: %w", err)
	}
	return string(plain), nil
}

type plainCipher struct{}

func (plainCipher) Encrypt(plain string) (string, error) { return plain, nil }

func (plainCipher) Decrypt(value string) (string, error) {
	if strings.HasPrefix(value, prefix) {
		return "", errors.New("encrypted secret found but no secrets key is configured")
	}
	return value, nil
}
