package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/twofa/internal/twofa/domain"
	"github.com/aussiebroadwan/twofa/internal/twofa/store"
)

const (
	createRecord = `
INSERT INTO user_records (id, secret, label, verified, last_counter, created_at, updated_at, verified_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT (id) DO NOTHING`

	getRecord = `
SELECT id, secret, label, verified, last_counter, created_at, updated_at, verified_at, version
FROM user_records
WHERE id = ?`

	updateRecord = `
UPDATE user_records
SET label = ?, verified = ?, last_counter = ?, verified_at = ?, updated_at = ?, version = version + 1
WHERE id = ? AND version = ?`

	deleteUnverifiedBefore = `
DELETE FROM user_records
WHERE verified = 0 AND created_at < ?`
)

type recordsRepo struct {
	db  *sql.DB
	now func() time.Time
}

func (r *recordsRepo) Create(ctx context.Context, rec domain.UserRecord) error {
	now := r.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	res, err := r.db.ExecContext(ctx, createRecord,
		rec.ID,
		rec.Secret,
		rec.Label,
		rec.Verified,
		mapOptionalInt64(rec.LastCounter),
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
		mapOptionalTime(rec.VerifiedAt),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (r *recordsRepo) Get(ctx context.Context, id string) (domain.UserRecord, error) {
	var (
		rec         domain.UserRecord
		lastCounter sql.NullInt64
		verifiedAt  sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, getRecord, id).Scan(
		&rec.ID,
		&rec.Secret,
		&rec.Label,
		&rec.Verified,
		&lastCounter,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&verifiedAt,
		&rec.Version,
	)
	if err != nil {
		return domain.UserRecord{}, mapNotFound(err)
	}

	rec.LastCounter = mapNullInt64Ptr(lastCounter)
	rec.VerifiedAt = mapNullTimePtr(verifiedAt)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

// Update loads the row, applies fn and writes it back guarded by the version
// it was read at. A concurrent writer bumps the version, the guarded UPDATE
// then matches no row and the attempt is retried from a fresh read.
func (r *recordsRepo) Update(ctx context.Context, id string, fn store.UpdateFunc) (domain.UserRecord, error) {
	var out domain.UserRecord

	err := store.RetryOnConflict(ctx, func(ctx context.Context) error {
		rec, err := r.Get(ctx, id)
		if err != nil {
			return err
		}

		read := rec
		if err := fn(&rec); err != nil {
			return err
		}

		rec.UpdatedAt = r.now()
		res, err := r.db.ExecContext(ctx, updateRecord,
			rec.Label,
			rec.Verified,
			mapOptionalInt64(rec.LastCounter),
			mapOptionalTime(rec.VerifiedAt),
			rec.UpdatedAt,
			id,
			read.Version,
		)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrConflict
		}

		// Immutable columns are reported as stored, whatever fn did to them.
		rec.ID = read.ID
		rec.Secret = read.Secret
		rec.CreatedAt = read.CreatedAt
		rec.Version = read.Version + 1
		out = rec
		return nil
	})
	if err != nil {
		return domain.UserRecord{}, err
	}
	return out, nil
}

func (r *recordsRepo) DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteUnverifiedBefore, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
