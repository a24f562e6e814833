package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Sealed format: [1-byte version][12-byte nonce][ciphertext + 16-byte tag]
const secretBoxVersion byte = 1

// MinMasterKeySize is the shortest master key material accepted.
const MinMasterKeySize = 16

var (
	ErrMasterKeyTooShort = errors.New("cryptox: master key too short")
	ErrMasterKeyMissing  = errors.New("cryptox: master key not configured")

	// ErrOpenFailed hides whether the key, the associated data or the payload was wrong.
	ErrOpenFailed = errors.New("cryptox: open failed")
)

// SecretBox seals small values with AES-256-GCM under a key derived from a
// master key with HKDF-SHA256. Associated data binds each sealed value to its
// owner so ciphertexts cannot be swapped between records.
type SecretBox struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewSecretBox derives the sealing key from master. The info string separates
// keys derived from the same master for different purposes.
func NewSecretBox(master []byte, info string) (*SecretBox, error) {
	if len(master) < MinMasterKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrMasterKeyTooShort, len(master), MinMasterKeySize)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SecretBox{aead: gcm, rand: rand.Reader}, nil
}

// Seal encrypts plaintext bound to aad with a fresh random nonce.
func (b *SecretBox) Seal(plaintext, aad []byte) ([]byte, error) {
	nonceSize := b.aead.NonceSize()

	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+b.aead.Overhead())
	out[0] = secretBoxVersion

	nonce := out[1 : 1+nonceSize]
	if _, err := io.ReadFull(b.rand, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return b.aead.Seal(out, nonce, plaintext, aad), nil
}

// Open reverses Seal. Any mismatch yields ErrOpenFailed.
func (b *SecretBox) Open(sealed, aad []byte) ([]byte, error) {
	nonceSize := b.aead.NonceSize()
	if len(sealed) < 1+nonceSize+b.aead.Overhead() {
		return nil, ErrOpenFailed
	}
	if sealed[0] != secretBoxVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrOpenFailed, sealed[0])
	}

	nonce, ciphertext := sealed[1:1+nonceSize], sealed[1+nonceSize:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrOpenFailed
	}

	return plaintext, nil
}

// LoadMasterKey reads key material from path when set, otherwise from the
// named environment variable. Surrounding whitespace is trimmed so key files
// written with a trailing newline work.
func LoadMasterKey(path, envVar string) ([]byte, error) {
	var material string

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		material = string(data)
	} else {
		material = os.Getenv(envVar)
	}

	material = strings.TrimSpace(material)
	if material == "" {
		return nil, ErrMasterKeyMissing
	}

	return []byte(material), nil
}
