// Package crypto encrypts tenant credentials at rest using AES-256-GCM.
//
// Stored values look like "enc:v1:<base64(nonce+ciphertext)>". Values without
// the prefix are treated as plaintext so unmigrated rows keep working.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const prefix = "enc:v1:"

// PurposeProviderKeys isolates the key used for LLM provider credentials.
const PurposeProviderKeys = "llm-provider-keys"

var ErrNoKey = errors.New("crypto: value is encrypted but no field encryption key is configured")

// Decrypter turns a stored credential back into plaintext.
type Decrypter interface {
	Decrypt(stored string) (string, error)
}

// FieldEncryptor is safe for concurrent use.
type FieldEncryptor struct {
	gcm cipher.AEAD
}

// DeriveFieldEncryptor derives an AES-256 key from masterSecret with HKDF.
// Different purposes yield unrelated keys from the same secret.
func DeriveFieldEncryptor(masterSecret []byte, purpose string) (*FieldEncryptor, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("crypto: empty master secret")
	}
	r := hkdf.New(sha256.New, masterSecret, []byte("bosun-field-encryption"), []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("crypto: HKDF derivation failed: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &FieldEncryptor{gcm: gcm}, nil
}

// Encrypt returns a prefixed ciphertext suitable for storage.
func (fe *FieldEncryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, fe.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}
	sealed := fe.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Unprefixed values pass through unchanged.
func (fe *FieldEncryptor) Decrypt(stored string) (string, error) {
	if !IsEncrypted(stored) {
		return stored, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, prefix))
	if err != nil {
		return "", fmt.Errorf("crypto: invalid base64: %w", err)
	}
	n := fe.gcm.NonceSize()
	if len(data) < n {
		return "", errors.New("crypto: ciphertext too short")
	}
	plaintext, err := fe.gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// Plaintext is the Decrypter used when no master secret is configured.
// It accepts plaintext rows and refuses encrypted ones.
type Plaintext struct{}

func (Plaintext) Decrypt(stored string) (string, error) {
	if IsEncrypted(stored) {
		return "", ErrNoKey
	}
	return stored, nil
}

// NewDecrypter picks a FieldEncryptor when masterSecret is set, Plaintext otherwise.
func NewDecrypter(masterSecret string) (Decrypter, error) {
	if strings.TrimSpace(masterSecret) == "" {
		return Plaintext{}, nil
	}
	return DeriveFieldEncryptor([]byte(masterSecret), PurposeProviderKeys)
}

// IsEncrypted reports whether stored carries the encryption prefix.
func IsEncrypted(stored string) bool {
	return strings.HasPrefix(stored, prefix)
}
