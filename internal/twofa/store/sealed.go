package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/twofa/internal/twofa/domain"
)

// Sealer encrypts values bound to associated data. *cryptox.SecretBox
// satisfies it.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) ([]byte, error)
}

// NewSealed wraps inner so secrets are sealed before they reach the driver and
// opened on the way out. The record identity is the associated data, so a
// sealed secret copied onto another record fails to open.
func NewSealed(inner Store, box Sealer) Store {
	return &sealedStore{Store: inner, box: box}
}

type sealedStore struct {
	Store
	box Sealer
}

func (s *sealedStore) Records() Records {
	return &sealedRecords{inner: s.Store.Records(), box: s.box}
}

type sealedRecords struct {
	inner Records
	box   Sealer
}

func (r *sealedRecords) Create(ctx context.Context, rec domain.UserRecord) error {
	sealed, err := r.box.Seal(rec.Secret, []byte(rec.ID))
	if err != nil {
		return fmt.Errorf("failed to seal secret: %w", err)
	}
	rec.Secret = sealed
	return r.inner.Create(ctx, rec)
}

func (r *sealedRecords) Get(ctx context.Context, id string) (domain.UserRecord, error) {
	rec, err := r.inner.Get(ctx, id)
	if err != nil {
		return domain.UserRecord{}, err
	}
	return r.open(rec)
}

func (r *sealedRecords) Update(ctx context.Context, id string, fn UpdateFunc) (domain.UserRecord, error) {
	rec, err := r.inner.Update(ctx, id, func(stored *domain.UserRecord) error {
		plain, err := r.open(*stored)
		if err != nil {
			return err
		}
		if err := fn(&plain); err != nil {
			return err
		}

		sealed := stored.Secret
		*stored = plain
		stored.Secret = sealed
		return nil
	})
	if err != nil {
		return domain.UserRecord{}, err
	}
	return r.open(rec)
}

func (r *sealedRecords) DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.inner.DeleteUnverifiedBefore(ctx, cutoff)
}

func (r *sealedRecords) open(rec domain.UserRecord) (domain.UserRecord, error) {
	secret, err := r.box.Open(rec.Secret, []byte(rec.ID))
	if err != nil {
		return domain.UserRecord{}, fmt.Errorf("failed to open secret for %s: %w", rec.ID, err)
	}
	rec.Secret = secret
	return rec, nil
}
