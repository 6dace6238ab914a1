// Package keycodec encodes and decodes gateway API keys. An API key is the
// AES-256-GCM encryption of a composite project key, base64-encoded and
// tagged with a version prefix so future codec versions can coexist.
package keycodec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// KeySize is the required size for AES-256 encryption keys (32 bytes).
	KeySize = 32

	// NonceSize is the size of the GCM nonce (12 bytes).
	NonceSize = 12

	// KeyPrefix identifies credentials produced by this codec version.
	KeyPrefix = "gk1:"
)

var (
	// ErrInvalidKeySize is returned when the encryption key has an invalid size.
	ErrInvalidKeySize = errors.New("encryption key must be exactly 32 bytes")

	// ErrNoEncryptionKey is returned when no encryption key is configured.
	ErrNoEncryptionKey = errors.New("no encryption key configured")

	// ErrMalformedCredential is returned for any credential that cannot be
	// decoded, decrypted, or parsed into a composite key. Callers must not
	// distinguish the failure modes to avoid leaking codec internals.
	ErrMalformedCredential = errors.New("malformed credential")
)

// CompositeKey identifies a project binding: the owning account, the
// account's key epoch at issue time, and the project itself.
type CompositeKey struct {
	AccountID string
	Epoch     int64
	ProjectID string
}

// String renders the composite key in its canonical wire form
// accountId_epoch_projectId.
func (k CompositeKey) String() string {
	return fmt.Sprintf("%s_%d_%s", k.AccountID, k.Epoch, k.ProjectID)
}

// ParseCompositeKey parses the canonical accountId_epoch_projectId form.
// Account and project ids never contain underscores, so a strict
// three-way split is sufficient.
func ParseCompositeKey(s string) (CompositeKey, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return CompositeKey{}, ErrMalformedCredential
	}

	epoch, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || epoch < 0 {
		return CompositeKey{}, ErrMalformedCredential
	}

	return CompositeKey{AccountID: parts[0], Epoch: epoch, ProjectID: parts[2]}, nil
}

// Codec encrypts and decrypts composite keys.
// It is safe for concurrent use - cipher.AEAD implementations are thread-safe.
type Codec struct {
	gcm cipher.AEAD
}

// NewCodec creates a new Codec with the given 32-byte key.
// The key must be exactly 32 bytes for AES-256 encryption.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Codec{gcm: gcm}, nil
}

// NewCodecFromBase64Key creates a new Codec from a base64-encoded key.
func NewCodecFromBase64Key(base64Key string) (*Codec, error) {
	if base64Key == "" {
		return nil, ErrNoEncryptionKey
	}

	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 key: %w", err)
	}

	return NewCodec(key)
}

// Encode encrypts a composite key into an opaque API key string.
// Each call uses a fresh random nonce, so two keys for the same project
// do not share ciphertext.
func (c *Codec) Encode(key CompositeKey) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := c.gcm.Seal(nonce, nonce, []byte(key.String()), nil)

	encoded := base64.RawURLEncoding.EncodeToString(ciphertext)
	return KeyPrefix + encoded, nil
}

// Decode decrypts an API key string back into its composite key. Unlike a
// storage-layer decryptor there is no passthrough for unprefixed values:
// anything that is not a well-formed credential of this codec version is
// rejected with ErrMalformedCredential.
func (c *Codec) Decode(credential string) (CompositeKey, error) {
	if !strings.HasPrefix(credential, KeyPrefix) {
		return CompositeKey{}, ErrMalformedCredential
	}

	data, err := base64.RawURLEncoding.DecodeString(credential[len(KeyPrefix):])
	if err != nil {
		return CompositeKey{}, ErrMalformedCredential
	}

	// Nonce plus at least one plaintext byte plus the GCM tag.
	if len(data) < NonceSize+c.gcm.Overhead()+1 {
		return CompositeKey{}, ErrMalformedCredential
	}

	nonce := data[:NonceSize]
	plaintext, err := c.gcm.Open(nil, nonce, data[NonceSize:], nil)
	if err != nil {
		return CompositeKey{}, ErrMalformedCredential
	}

	return ParseCompositeKey(string(plaintext))
}

// GenerateKey generates a new random 32-byte encryption key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateKeyBase64 generates a new random encryption key and returns it as base64.
func GenerateKeyBase64() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
