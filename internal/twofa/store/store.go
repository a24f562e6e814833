package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/twofa/internal/twofa/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict means the record changed between read and write. Update
	// retries on it internally; callers only see it once retries run out.
	ErrConflict = errors.New("store: concurrent modification")
)

// Store is the root data access interface. Concrete drivers (sqlite, redis)
// implement this and expose sub-repositories.
type Store interface {
	Records() Records

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backend is still reachable.
	Ping(ctx context.Context) error
}

// UpdateFunc mutates a loaded record in place. Returning an error aborts the
// update without writing anything and the error is passed through unchanged.
type UpdateFunc func(rec *domain.UserRecord) error

type Records interface {
	// Create inserts a new record. Returns ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, rec domain.UserRecord) error

	// Get returns the record for id or ErrNotFound.
	Get(ctx context.Context, id string) (domain.UserRecord, error)

	// Update is an atomic read-modify-write on one record. The secret and
	// creation time are never rewritten; version and updated_at are managed by
	// the driver.
	Update(ctx context.Context, id string, fn UpdateFunc) (domain.UserRecord, error)

	// DeleteUnverifiedBefore removes records that were never verified and were
	// created before cutoff. Returns how many were removed.
	DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
