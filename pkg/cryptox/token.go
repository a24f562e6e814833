package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically secure random token of the specified byte length.
// The token is returned as a base64url-encoded string (URL-safe, no padding).
func GenerateToken(size int) (string, error) {
	return readToken(rand.Reader, size)
}

// MustGenerateToken is like GenerateToken but panics on error.
// Use this only during initialization or in contexts where failure is unrecoverable.
func MustGenerateToken(size int) string {
	token, err := GenerateToken(size)
	if err != nil {
		panic(fmt.Sprintf("cryptox: failed to generate token: %v", err))
	}
	return token
}

func readToken(r io.Reader, size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IdentityGenerator issues opaque account handles. It draws from its own
// reader, separate from whatever source produces shared secrets.
type IdentityGenerator struct {
	rand io.Reader
	size int
}

// NewIdentityGenerator returns a generator of 128-bit handles. A nil reader
// selects crypto/rand.
func NewIdentityGenerator(r io.Reader) *IdentityGenerator {
	if r == nil {
		r = rand.Reader
	}
	return &IdentityGenerator{rand: r, size: TokenSize128}
}

// New returns a fresh 22 character identity.
func (g *IdentityGenerator) New() (string, error) {
	return readToken(g.rand, g.size)
}
