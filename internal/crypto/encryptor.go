package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// KeySize is the required AES-256 key length in bytes.
	KeySize = 32

	nonceSize = 12
	tagSize   = 16

	envelopeSeparator = ":"
)

var (
	// ErrInvalidKeyConfiguration means the configured key does not decode to
	// exactly KeySize bytes.
	ErrInvalidKeyConfiguration = errors.New("encryption key must decode to 32 bytes")

	// ErrMalformedEnvelope means the input is not an iv:tag:ciphertext envelope.
	ErrMalformedEnvelope = errors.New("invalid encrypted token format")

	// ErrAuthenticationFailed means the envelope did not verify under the key.
	ErrAuthenticationFailed = errors.New("failed to decrypt token")
)

// Encryptor seals and opens secret strings for storage.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(envelope string) (string, error)
}

// TokenCipher encrypts provider tokens with AES-256-GCM.
//
// Envelopes are hex(iv):hex(tag):hex(ciphertext). The key is decoded once at
// construction; a bad key makes every Encrypt and Decrypt call return
// ErrInvalidKeyConfiguration rather than failing at startup, so callers that
// want to fail fast should call Validate.
type TokenCipher struct {
	aead cipher.AEAD
	err  error
}

var _ Encryptor = (*TokenCipher)(nil)

// NewTokenCipher builds a cipher from a base64 encoded 32-byte key.
func NewTokenCipher(encodedKey string) *TokenCipher {
	key, err := decodeKey(encodedKey)
	if err != nil {
		return &TokenCipher{err: err}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return &TokenCipher{err: fmt.Errorf("%w: %v", ErrInvalidKeyConfiguration, err)}
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return &TokenCipher{err: fmt.Errorf("%w: %v", ErrInvalidKeyConfiguration, err)}
	}
	return &TokenCipher{aead: aead}
}

func decodeKey(encodedKey string) ([]byte, error) {
	encodedKey = strings.TrimSpace(encodedKey)
	if encodedKey == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrInvalidKeyConfiguration)
	}

	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		key, err = base64.URLEncoding.DecodeString(encodedKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid base64", ErrInvalidKeyConfiguration)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidKeyConfiguration, len(key))
	}
	return key, nil
}

// Validate reports the key configuration error, if any.
func (c *TokenCipher) Validate() error {
	return c.err
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if c.err != nil {
		return "", c.err
	}

	nonce, err := RandomBytes(nonceSize)
	if err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, envelopeSeparator), nil
}

// Decrypt opens an envelope produced by Encrypt.
func (c *TokenCipher) Decrypt(envelope string) (string, error) {
	if c.err != nil {
		return "", c.err
	}

	parts := strings.Split(envelope, envelopeSeparator)
	if len(parts) != 3 {
		return "", ErrMalformedEnvelope
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", ErrMalformedEnvelope
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformedEnvelope
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedEnvelope
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plaintext), nil
}
