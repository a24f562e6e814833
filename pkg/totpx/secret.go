package totpx

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultSecretSize is 160 bits, the RFC 4226 recommendation for HMAC-SHA1.
	DefaultSecretSize = 20
	// MinSecretSize is the RFC 4226 floor of 128 bits.
	MinSecretSize = 16
)

var (
	// ErrEntropyUnavailable is returned when the random source fails or runs dry.
	// Callers treat it as a hard failure and do not retry.
	ErrEntropyUnavailable = errors.New("totpx: entropy source unavailable")

	ErrSecretTooShort = errors.New("totpx: secret size below minimum")
)

// SecretGenerator produces fixed-length shared secrets from a CSPRNG.
type SecretGenerator struct {
	size int
	rand io.Reader
}

// NewSecretGenerator returns a generator producing size-byte secrets. A zero
// size selects DefaultSecretSize and a nil reader selects crypto/rand.
func NewSecretGenerator(size int, r io.Reader) (*SecretGenerator, error) {
	if size == 0 {
		size = DefaultSecretSize
	}
	if size < MinSecretSize {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrSecretTooShort, size, MinSecretSize)
	}
	if r == nil {
		r = rand.Reader
	}

	return &SecretGenerator{size: size, rand: r}, nil
}

// Size reports the length in bytes of generated secrets.
func (g *SecretGenerator) Size() int { return g.size }

// Generate returns a fresh secret.
func (g *SecretGenerator) Generate() ([]byte, error) {
	buf := make([]byte, g.size)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEntropyUnavailable, err)
	}
	return buf, nil
}
