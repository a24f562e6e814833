// Package storetest holds the behaviour every store driver must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/twofa/internal/twofa/domain"
	"github.com/aussiebroadwan/twofa/internal/twofa/store"
	"github.com/aussiebroadwan/twofa/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, migrated, empty store. The factory owns cleanup.
type Factory func(t *testing.T) store.Store

// NewRecord builds an unverified record with a random identity.
func NewRecord(t *testing.T, createdAt time.Time) domain.UserRecord {
	t.Helper()

	id, err := cryptox.GenerateToken(cryptox.TokenSize128)
	require.NoError(t, err)

	return domain.UserRecord{
		ID:        id,
		Secret:    []byte("12345678901234567890"),
		Label:     "alice@example.com",
		CreatedAt: createdAt.UTC().Truncate(time.Millisecond),
	}
}

// RunRecords exercises the store.Records contract.
func RunRecords(t *testing.T, newStore Factory) {
	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord(t, time.Now())

		require.NoError(t, s.Records().Create(ctx, rec))

		got, err := s.Records().Get(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, rec.ID, got.ID)
		require.Equal(t, rec.Secret, got.Secret)
		require.Equal(t, rec.Label, got.Label)
		require.False(t, got.Verified)
		require.Nil(t, got.LastCounter)
		require.Nil(t, got.VerifiedAt)
		require.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)
		require.Equal(t, int64(1), got.Version)
	})

	t.Run("duplicate create", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord(t, time.Now())

		require.NoError(t, s.Records().Create(ctx, rec))

		dup := rec
		dup.Secret = []byte("another-secret-value")
		err := s.Records().Create(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)

		got, err := s.Records().Get(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, rec.Secret, got.Secret, "secret must not be overwritten")
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Records().Get(context.Background(), "does-not-exist")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord(t, time.Now())
		require.NoError(t, s.Records().Create(ctx, rec))

		verifiedAt := time.Now().UTC().Truncate(time.Millisecond)
		counter := int64(55_555_555)

		updated, err := s.Records().Update(ctx, rec.ID, func(r *domain.UserRecord) error {
			r.Verified = true
			r.VerifiedAt = &verifiedAt
			r.LastCounter = &counter
			r.Secret = []byte("attempted-overwrite!")
			return nil
		})
		require.NoError(t, err)
		require.True(t, updated.Verified)
		require.Equal(t, int64(2), updated.Version)
		require.Equal(t, rec.Secret, updated.Secret)

		got, err := s.Records().Get(ctx, rec.ID)
		require.NoError(t, err)
		require.True(t, got.Verified)
		require.NotNil(t, got.VerifiedAt)
		require.WithinDuration(t, verifiedAt, *got.VerifiedAt, time.Millisecond)
		require.NotNil(t, got.LastCounter)
		require.Equal(t, counter, *got.LastCounter)
		require.Equal(t, rec.Secret, got.Secret, "secret is immutable")
		require.Equal(t, int64(2), got.Version)
	})

	t.Run("update unknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Records().Update(context.Background(), "does-not-exist", func(r *domain.UserRecord) error {
			return nil
		})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update aborted by fn", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord(t, time.Now())
		require.NoError(t, s.Records().Create(ctx, rec))

		abort := errors.New("abort")
		_, err := s.Records().Update(ctx, rec.ID, func(r *domain.UserRecord) error {
			r.Verified = true
			return abort
		})
		require.ErrorIs(t, err, abort)

		got, err := s.Records().Get(ctx, rec.ID)
		require.NoError(t, err)
		require.False(t, got.Verified)
		require.Equal(t, int64(1), got.Version)
	})

	t.Run("concurrent updates are serialised", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord(t, time.Now())
		require.NoError(t, s.Records().Create(ctx, rec))

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)

		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Records().Update(ctx, rec.ID, func(r *domain.UserRecord) error {
					next := int64(1)
					if r.LastCounter != nil {
						next = *r.LastCounter + 1
					}
					r.LastCounter = &next
					return nil
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, store.ErrConflict)
		}

		got, err := s.Records().Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastCounter)
		require.Equal(t, int64(succeeded), *got.LastCounter, "no lost updates")
		require.Equal(t, int64(succeeded+1), got.Version)
	})

	t.Run("delete unverified before", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		stale := NewRecord(t, now.Add(-2*time.Hour))
		fresh := NewRecord(t, now)
		staleVerified := NewRecord(t, now.Add(-2*time.Hour))
		staleVerified.Verified = true
		verifiedAt := now.Add(-time.Hour)
		staleVerified.VerifiedAt = &verifiedAt

		for _, rec := range []domain.UserRecord{stale, fresh, staleVerified} {
			require.NoError(t, s.Records().Create(ctx, rec))
		}

		n, err := s.Records().DeleteUnverifiedBefore(ctx, now.Add(-time.Hour))
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		_, err = s.Records().Get(ctx, stale.ID)
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.Records().Get(ctx, fresh.ID)
		require.NoError(t, err)

		_, err = s.Records().Get(ctx, staleVerified.ID)
		require.NoError(t, err)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(context.Background()))
	})
}
