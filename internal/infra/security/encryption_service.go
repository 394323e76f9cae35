// Package security seals conversation text before it leaves the process.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks sealed values so readers can tell them from plaintext
// written before a key was configured.
const sealedPrefix = "enc:v1:"

var ErrNotSealed = errors.New("value is not sealed")

// Sealer is AES-GCM with a fresh random nonce per value.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer accepts a raw 16, 24 or 32 byte key, or the standard base64
// encoding of one.
func NewSealer(key string) (*Sealer, error) {
	k := []byte(key)
	if !validKeyLen(len(k)) {
		dec, err := base64.StdEncoding.DecodeString(key)
		if err != nil || !validKeyLen(len(dec)) {
			return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", len(k))
		}
		k = dec
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

func validKeyLen(n int) bool { return n == 16 || n == 24 || n == 32 }

// Seal returns "enc:v1:" + base64(nonce || ciphertext). Empty input stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !IsSealed(sealed) {
		return "", ErrNotSealed
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	ns := s.gcm.NonceSize()
	if len(data) < ns {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ct := data[:ns], data[ns:]
	pt, err := s.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(pt), nil
}

func IsSealed(s string) bool { return strings.HasPrefix(s, sealedPrefix) }
