package totpx

import (
	"crypto/hmac"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// DefaultPeriod is the RFC 6238 time step in seconds.
	DefaultPeriod = 30

	// MaxWindow caps the number of adjacent steps Verify will search.
	MaxWindow = 10
)

var ErrInvalidOptions = errors.New("totpx: invalid engine options")

// Options configures an Engine. Zero values select RFC 6238 defaults:
// 30 second period, six digits, HMAC-SHA1.
type Options struct {
	Period    uint
	Digits    otp.Digits
	Algorithm otp.Algorithm
}

// Engine derives and verifies time-stepped one-time codes. It holds no
// per-secret state and is safe for concurrent use.
type Engine struct {
	period    int64
	digits    otp.Digits
	algorithm otp.Algorithm
	modulo    uint32
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Period == 0 {
		opts.Period = DefaultPeriod
	}
	if opts.Digits == 0 {
		opts.Digits = otp.DigitsSix
	}

	switch opts.Digits {
	case otp.DigitsSix, otp.DigitsEight:
	default:
		return nil, fmt.Errorf("%w: unsupported digits %d", ErrInvalidOptions, opts.Digits)
	}

	switch opts.Algorithm {
	case otp.AlgorithmSHA1, otp.AlgorithmSHA256, otp.AlgorithmSHA512:
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %s", ErrInvalidOptions, opts.Algorithm)
	}

	return &Engine{
		period:    int64(opts.Period),
		digits:    opts.Digits,
		algorithm: opts.Algorithm,
		modulo:    uint32(math.Pow10(opts.Digits.Length())),
	}, nil
}

// ParseAlgorithm maps a configuration name to an HMAC algorithm.
func ParseAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(strings.ReplaceAll(name, "-", "")) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidOptions, name)
	}
}

func (e *Engine) Period() time.Duration    { return time.Duration(e.period) * time.Second }
func (e *Engine) Digits() otp.Digits       { return e.digits }
func (e *Engine) Algorithm() otp.Algorithm { return e.algorithm }

// CounterAt returns floor(unix(t) / period).
func (e *Engine) CounterAt(t time.Time) int64 {
	unix := t.Unix()
	counter := unix / e.period
	if unix%e.period != 0 && unix < 0 {
		counter--
	}
	return counter
}

// CodeAt computes the HOTP value (RFC 4226) of secret at counter.
func (e *Engine) CodeAt(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(e.algorithm.Hash, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation: the low nibble of the last byte picks a 4 byte slice.
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return e.digits.Format(int32(value % e.modulo))
}

// Verify reports whether candidate matches the code of any counter within
// window steps of the counter at t. Offsets are tried nearest first and every
// comparison is constant time. The matched counter is returned on success.
func (e *Engine) Verify(secret []byte, candidate string, at time.Time, window uint) (int64, bool) {
	if window > MaxWindow {
		window = MaxWindow
	}

	current := e.CounterAt(at)
	want := []byte(candidate)

	for _, offset := range searchOrder(window) {
		counter := current + offset
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(e.CodeAt(secret, counter)), want) == 1 {
			return counter, true
		}
	}

	return 0, false
}

// searchOrder yields 0, -1, +1, -2, +2 ... up to window.
func searchOrder(window uint) []int64 {
	out := make([]int64, 0, 2*window+1)
	out = append(out, 0)
	for i := int64(1); i <= int64(window); i++ {
		out = append(out, -i, i)
	}
	return out
}

// ProvisioningURL returns the otpauth:// URL for secret, suitable for QR
// rendering. The URL carries this engine's period, digits and algorithm.
func (e *Engine) ProvisioningURL(secret []byte, issuer, account string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      uint(e.period),
		Secret:      secret,
		Digits:      e.digits,
		Algorithm:   e.algorithm,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build provisioning url: %w", err)
	}
	return key.URL(), nil
}
