// Package crypto provides field-level AES-GCM encryption for PII at rest
// and HMAC-SHA256 signing for webhook authentication.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// MinKeyLength is the minimum accepted length for encryption keys and
// webhook secrets. Boot fails closed below it.
const MinKeyLength = 32

// Encryptor encrypts and decrypts field values with a process-wide key
type Encryptor struct {
	aead cipher.AEAD
	key  []byte
}

// NewEncryptor creates an encryptor from a secret key. The key must be at
// least MinKeyLength bytes; it is normalized to the AES-256 key size via
// SHA-256.
func NewEncryptor(key string) (*Encryptor, error) {
	if len(key) < MinKeyLength {
		return nil, fmt.Errorf("encryption key must be at least %d bytes, got %d", MinKeyLength, len(key))
	}

	keyBytes := sha256.Sum256([]byte(key))

	block, err := aes.NewCipher(keyBytes[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: aead, key: keyBytes[:]}, nil
}

// Encrypt seals plaintext; the nonce is prepended to the ciphertext
func (e *Encryptor) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to create nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens ciphertext produced by Encrypt
func (e *Encryptor) Decrypt(ciphertext []byte) (string, error) {
	nonceSize := e.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Fingerprint returns a deterministic keyed digest of a value. GCM
// ciphertext is nonce-randomized, so uniqueness constraints over encrypted
// columns index this fingerprint instead.
func (e *Encryptor) Fingerprint(value string) string {
	mac := hmac.New(sha256.New, e.key)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignHMAC computes the lowercase-hex HMAC-SHA256 of a payload
func SignHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a lowercase-hex signature in constant time
func VerifyHMAC(secret string, payload []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}
