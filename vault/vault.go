// Package vault decrypts stored node credentials. Credentials are sealed
// with AES-256-GCM under a process-wide key and stored as base64url text;
// the plaintext is a JSON object of credential fields.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// KeySize is the required key length in bytes.
const KeySize = 32

// ErrInvalidCiphertext is returned when a sealed blob cannot be decoded or
// authenticated.
var ErrInvalidCiphertext = errors.New("invalid credential ciphertext")

// Vault seals and opens credential blobs with a single symmetric key.
type Vault struct {
	aead cipher.AEAD
}

// New builds a vault from a raw 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("credential key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// NewFromEncoded builds a vault from a base64url-encoded key, the form the
// key takes in configuration.
func NewFromEncoded(encoded string) (*Vault, error) {
	key, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode credential key: %w", err)
	}
	return New(key)
}

// Seal encrypts a credential map and returns the base64url blob stored
// alongside the node. The nonce is prepended to the ciphertext.
func (v *Vault) Seal(creds map[string]any) (string, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed blob back into the credential map.
func (v *Vault) Open(encoded string) (map[string]any, error) {
	sealed, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCiphertext, err)
	}
	if len(sealed) < v.aead.NonceSize() {
		return nil, fmt.Errorf("%w: blob too short", ErrInvalidCiphertext)
	}
	nonce, ciphertext := sealed[:v.aead.NonceSize()], sealed[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCiphertext, err)
	}
	var creds map[string]any
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

// OpenField decrypts a blob and extracts one string field.
func (v *Vault) OpenField(encoded, field string) (string, error) {
	creds, err := v.Open(encoded)
	if err != nil {
		return "", err
	}
	val, ok := creds[field].(string)
	if !ok {
		return "", fmt.Errorf("credential field %q missing or not a string", field)
	}
	return val, nil
}
