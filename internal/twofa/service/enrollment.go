package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/aussiebroadwan/twofa/internal/twofa/domain"
	"github.com/aussiebroadwan/twofa/internal/twofa/store"
	"github.com/aussiebroadwan/twofa/pkg/cryptox"
	"github.com/aussiebroadwan/twofa/pkg/totpx"
)

const (
	DefaultEnrollWindow   = 1
	DefaultValidateWindow = 0

	maxLabelLength = 128
)

var (
	ErrUnknownIdentity   = errors.New("unknown identity")
	ErrAlreadyRegistered = errors.New("identity already registered")
	ErrAlreadyVerified   = errors.New("enrollment already verified")
	ErrInvalidLabel      = errors.New("invalid label")

	// ErrReplayedCode never leaves this package; a replayed code is reported
	// as a plain mismatch.
	ErrReplayedCode = errors.New("code already used")
)

type RegisterRequest struct {
	Label string
}

// EnrollmentService drives a record through unregistered -> unverified ->
// verified. Only ConfirmEnrollment may make the last transition.
type EnrollmentService struct {
	Store      store.Store
	Engine     *totpx.Engine
	Secrets    *totpx.SecretGenerator
	Identities *cryptox.IdentityGenerator
	Issuer     string // Issuer shown in authenticator apps

	EnrollWindow   uint // steps of drift tolerated when confirming enrollment
	ValidateWindow uint // steps of drift tolerated on routine validation

	// ReplayProtection rejects any code whose counter is not newer than the
	// last accepted one for the record.
	ReplayProtection bool

	Now func() time.Time // defaults to time.Now
}

// Clock returns the current UTC time as seen by the service.
func (s *EnrollmentService) Clock() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Register creates a new identity and enrolls it.
func (s *EnrollmentService) Register(ctx context.Context, req RegisterRequest) (domain.Enrollment, error) {
	identity, err := s.Identities.New()
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("failed to generate identity: %w", err)
	}
	return s.RegisterIdentity(ctx, identity, req.Label)
}

// RegisterIdentity enrolls a caller-chosen identity. The identity must not be
// registered yet.
func (s *EnrollmentService) RegisterIdentity(ctx context.Context, identity, label string) (domain.Enrollment, error) {
	label = strings.TrimSpace(label)
	if err := validateLabel(label); err != nil {
		return domain.Enrollment{}, err
	}

	secret, err := s.Secrets.Generate()
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("failed to generate secret: %w", err)
	}

	now := s.Clock()
	rec := domain.UserRecord{
		ID:        identity,
		Secret:    secret,
		Label:     label,
		CreatedAt: now,
		UpdatedAt: now,
	}

	url, err := s.Engine.ProvisioningURL(secret, s.Issuer, rec.AccountName())
	if err != nil {
		return domain.Enrollment{}, err
	}

	if err := s.Store.Records().Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Enrollment{}, ErrAlreadyRegistered
		}
		return domain.Enrollment{}, fmt.Errorf("failed to store record: %w", err)
	}

	return domain.Enrollment{
		Identity:        identity,
		Secret:          rec.EncodedSecret(),
		ProvisioningURL: url,
		Label:           label,
	}, nil
}

// ConfirmEnrollment checks code against the record's secret and, on a match,
// marks the record verified. A mismatch is (false, nil) and leaves the record
// untouched. Confirming an already verified record is rejected with
// ErrAlreadyVerified.
func (s *EnrollmentService) ConfirmEnrollment(ctx context.Context, identity, code string, at time.Time) (bool, error) {
	rec, err := s.get(ctx, identity)
	if err != nil {
		return false, err
	}
	if rec.Verified {
		return false, ErrAlreadyVerified
	}

	counter, ok := s.Engine.Verify(rec.Secret, code, at, s.EnrollWindow)
	if !ok {
		return false, nil
	}

	verifiedAt := at.UTC()
	_, err = s.Store.Records().Update(ctx, identity, func(r *domain.UserRecord) error {
		// Re-checked under the store's atomicity; a concurrent confirm may have won.
		if r.Verified {
			return ErrAlreadyVerified
		}
		if err := s.consumeCounter(r, counter); err != nil {
			return err
		}

		r.Verified = true
		r.VerifiedAt = &verifiedAt
		return nil
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrReplayedCode):
		return false, nil
	case errors.Is(err, ErrAlreadyVerified):
		return false, ErrAlreadyVerified
	case errors.Is(err, store.ErrNotFound):
		return false, ErrUnknownIdentity
	default:
		return false, fmt.Errorf("failed to mark verified: %w", err)
	}
}

// Validate checks code for a registered identity in any state. It never
// changes the verification status.
func (s *EnrollmentService) Validate(ctx context.Context, identity, code string, at time.Time) (bool, error) {
	rec, err := s.get(ctx, identity)
	if err != nil {
		return false, err
	}

	counter, ok := s.Engine.Verify(rec.Secret, code, at, s.ValidateWindow)
	if !ok || !s.ReplayProtection {
		return ok, nil
	}

	_, err = s.Store.Records().Update(ctx, identity, func(r *domain.UserRecord) error {
		return s.consumeCounter(r, counter)
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrReplayedCode):
		return false, nil
	case errors.Is(err, store.ErrNotFound):
		return false, ErrUnknownIdentity
	default:
		return false, fmt.Errorf("failed to record counter: %w", err)
	}
}

// Status returns the record for identity. Callers must not expose its secret.
func (s *EnrollmentService) Status(ctx context.Context, identity string) (domain.UserRecord, error) {
	return s.get(ctx, identity)
}

func (s *EnrollmentService) get(ctx context.Context, identity string) (domain.UserRecord, error) {
	rec, err := s.Store.Records().Get(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.UserRecord{}, ErrUnknownIdentity
		}
		return domain.UserRecord{}, fmt.Errorf("failed to load record: %w", err)
	}
	return rec, nil
}

// consumeCounter records counter as used when replay protection is on.
func (s *EnrollmentService) consumeCounter(r *domain.UserRecord, counter int64) error {
	if !s.ReplayProtection {
		return nil
	}
	if r.LastCounter != nil && counter <= *r.LastCounter {
		return ErrReplayedCode
	}
	r.LastCounter = &counter
	return nil
}

func validateLabel(label string) error {
	if len(label) > maxLabelLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidLabel, maxLabelLength)
	}
	// The otpauth label uses ':' to split issuer from account.
	if strings.ContainsRune(label, ':') {
		return fmt.Errorf("%w: must not contain ':'", ErrInvalidLabel)
	}
	for _, r := range label {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: contains control characters", ErrInvalidLabel)
		}
	}
	return nil
}
