package domain

import (
	"time"

	"github.com/aussiebroadwan/twofa/pkg/totpx"
)

type EnrollmentState string

const (
	StateUnregistered EnrollmentState = "unregistered"
	StateUnverified   EnrollmentState = "unverified"
	StateVerified     EnrollmentState = "verified"
)

// UserRecord is the persisted second factor of one account.
type UserRecord struct {
	ID          string     // 128-bit random handle, base64url
	Secret      []byte     // shared secret, written once at registration
	Label       string     // account name shown in authenticator apps (optional)
	Verified    bool       // flips false -> true once, never back
	LastCounter *int64     // last accepted TOTP counter (replay protection only)
	CreatedAt   time.Time
	UpdatedAt   time.Time
	VerifiedAt  *time.Time // set together with Verified
	Version     int64      // optimistic concurrency token, owned by the store
}

// EncodedSecret is the base32 form handed to the user.
func (r UserRecord) EncodedSecret() string {
	return totpx.EncodeSecret(r.Secret)
}

// AccountName is the label when set, otherwise the identity.
func (r UserRecord) AccountName() string {
	if r.Label != "" {
		return r.Label
	}
	return r.ID
}

func (r UserRecord) State() EnrollmentState {
	switch {
	case r.ID == "":
		return StateUnregistered
	case r.Verified:
		return StateVerified
	default:
		return StateUnverified
	}
}

// Enrollment is what a successful registration hands back to the caller.
type Enrollment struct {
	Identity        string
	Secret          string // base32, no padding
	ProvisioningURL string // otpauth://totp/...
	Label           string
}
