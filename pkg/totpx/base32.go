package totpx

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEncoding reports a secret string that is not valid base32.
// It is a client input error, never a system fault.
var ErrMalformedEncoding = errors.New("totpx: malformed base32 encoding")

var b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeSecret renders a secret in the RFC 4648 alphabet without padding,
// which is the form authenticator apps accept.
func EncodeSecret(secret []byte) string {
	return b32NoPadding.EncodeToString(secret)
}

// DecodeSecret parses a base32 secret. Input is case-insensitive and may contain
// whitespace. Padding is optional, but when present it must be exact. Input
// whose length or trailing bits could not have come from EncodeSecret is
// rejected rather than silently truncated.
func DecodeSecret(s string) ([]byte, error) {
	s = strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if s == "" {
		return []byte{}, nil
	}

	enc := b32NoPadding
	if strings.Contains(s, "=") {
		if len(s)%8 != 0 {
			return nil, fmt.Errorf("%w: padded length %d is not a multiple of 8", ErrMalformedEncoding, len(s))
		}
		enc = base32.StdEncoding
	}

	out, err := enc.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	if enc.EncodeToString(out) != s {
		return nil, fmt.Errorf("%w: non-canonical length or padding", ErrMalformedEncoding)
	}
	return out, nil
}
