package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// blobVersion is the version byte for the encrypted blob format.
	blobVersion = 0x01

	// nonceSize is the AES-GCM nonce size (12 bytes is standard)
	nonceSize = 12

	// KeySize is the required key size for AES-256
	KeySize = 32

	// keyInfo binds derived keys to credential encryption
	keyInfo = "readlater credential store v1"
)

var (
	// ErrInvalidKeySize is returned when the encryption key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")

	// ErrInvalidBlobSize is returned when the encrypted blob is too small.
	ErrInvalidBlobSize = errors.New("encrypted blob is too small")

	// ErrUnsupportedVersion is returned when the blob version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported secret blob version")

	// ErrDecryptionFailed is returned when decryption fails (wrong key or corrupted data).
	ErrDecryptionFailed = errors.New("failed to decrypt secret blob")

	// ErrEmptyPassphrase is returned when no key material is configured.
	ErrEmptyPassphrase = errors.New("credential secret is empty")
)

// DeriveKey stretches an operator-supplied secret into a 32-byte AES key
// using HKDF-SHA256. The same secret and salt always yield the same key.
func DeriveKey(passphrase, salt string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(passphrase), []byte(salt), []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Encryptor handles AES-256-GCM encryption/decryption of secrets.
// The encrypted format is: version(1) || nonce(12) || ciphertext(N)
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor creates a new encryptor with the given 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// NewEncryptorFromPassphrase derives the key with DeriveKey.
func NewEncryptorFromPassphrase(passphrase, salt string) (*Encryptor, error) {
	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	return NewEncryptor(key)
}

// Encrypt JSON-marshals value and seals it.
func (e *Encryptor) Encrypt(value any) ([]byte, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return e.seal(plaintext)
}

// Decrypt opens a blob and unmarshals the result into value.
func (e *Encryptor) Decrypt(blob []byte, value any) error {
	plaintext, err := e.open(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, value); err != nil {
		return fmt.Errorf("unmarshal decrypted value: %w", err)
	}
	return nil
}

// EncryptString seals the raw bytes of s. No encoding is applied, so
// composite secrets round-trip exactly.
func (e *Encryptor) EncryptString(s string) ([]byte, error) {
	return e.seal([]byte(s))
}

// DecryptString opens a blob produced by EncryptString.
func (e *Encryptor) DecryptString(blob []byte) (string, error) {
	plaintext, err := e.open(blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (e *Encryptor) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, plaintext, nil)

	// Build blob: version || nonce || ciphertext
	blob := make([]byte, 1+nonceSize+len(ciphertext))
	blob[0] = blobVersion
	copy(blob[1:1+nonceSize], nonce)
	copy(blob[1+nonceSize:], ciphertext)

	return blob, nil
}

func (e *Encryptor) open(blob []byte) ([]byte, error) {
	minSize := 1 + nonceSize + e.gcm.Overhead()
	if len(blob) < minSize {
		return nil, ErrInvalidBlobSize
	}

	if version := blob[0]; version != blobVersion {
		return nil, fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, version)
	}

	nonce := blob[1 : 1+nonceSize]
	ciphertext := blob[1+nonceSize:]

	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
