package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/twofa/internal/twofa/domain"
	"github.com/aussiebroadwan/twofa/internal/twofa/store"
	"github.com/aussiebroadwan/twofa/pkg/totpx"
	"github.com/redis/go-redis/v9"
)

const (
	fieldSecret      = "secret"
	fieldLabel       = "label"
	fieldVerified    = "verified"
	fieldLastCounter = "last_counter"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
	fieldVerifiedAt  = "verified_at"
	fieldVersion     = "version"
)

type recordsRepo struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func (r *recordsRepo) recordKey(id string) string { return r.prefix + "record:" + id }
func (r *recordsRepo) unverifiedKey() string      { return r.prefix + "unverified" }

func (r *recordsRepo) Create(ctx context.Context, rec domain.UserRecord) error {
	now := r.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	rec.Version = 1

	key := r.recordKey(rec.ID)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return store.ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeRecord(rec))
			if !rec.Verified {
				pipe.ZAdd(ctx, r.unverifiedKey(), redis.Z{
					Score:  float64(rec.CreatedAt.UnixMilli()),
					Member: rec.ID,
				})
			}
			return nil
		})
		return err
	}, key)

	// Losing the race to a concurrent create of the same id.
	if errors.Is(err, redis.TxFailedErr) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *recordsRepo) Get(ctx context.Context, id string) (domain.UserRecord, error) {
	return r.load(ctx, r.client, id)
}

type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func (r *recordsRepo) load(ctx context.Context, c hashGetter, id string) (domain.UserRecord, error) {
	fields, err := c.HGetAll(ctx, r.recordKey(id)).Result()
	if err != nil {
		return domain.UserRecord{}, err
	}
	if len(fields) == 0 {
		return domain.UserRecord{}, store.ErrNotFound
	}
	return decodeRecord(id, fields)
}

// Update watches the record key for the whole read-modify-write. Any write by
// another client between the read and EXEC aborts the transaction and the
// attempt is retried from a fresh read.
func (r *recordsRepo) Update(ctx context.Context, id string, fn store.UpdateFunc) (domain.UserRecord, error) {
	key := r.recordKey(id)
	var out domain.UserRecord

	err := store.RetryOnConflict(ctx, func(ctx context.Context) error {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := r.load(ctx, tx, id)
			if err != nil {
				return err
			}

			read := rec
			if err := fn(&rec); err != nil {
				return err
			}

			rec.ID = read.ID
			rec.Secret = read.Secret
			rec.CreatedAt = read.CreatedAt
			rec.UpdatedAt = r.now()
			rec.Version = read.Version + 1

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, encodeMutable(rec))
				if rec.LastCounter == nil {
					pipe.HDel(ctx, key, fieldLastCounter)
				}
				if rec.VerifiedAt == nil {
					pipe.HDel(ctx, key, fieldVerifiedAt)
				}
				if rec.Verified {
					pipe.ZRem(ctx, r.unverifiedKey(), id)
				}
				return nil
			})
			if err != nil {
				return err
			}

			out = rec
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			return store.ErrConflict
		}
		return err
	})
	if err != nil {
		return domain.UserRecord{}, err
	}
	return out, nil
}

func (r *recordsRepo) DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.unverifiedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, id := range ids {
		key := r.recordKey(id)

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			verified, err := tx.HGet(ctx, key, fieldVerified).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				// Verified in the meantime: drop the stale index entry only.
				if verified != "1" {
					pipe.Del(ctx, key)
				}
				pipe.ZRem(ctx, r.unverifiedKey(), id)
				return nil
			})
			if err != nil {
				return err
			}

			if verified == "0" {
				deleted++
			}
			return nil
		}, key)

		// Touched while we looked at it; leave it for the next sweep.
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return deleted, err
		}
	}

	return deleted, nil
}

func encodeRecord(rec domain.UserRecord) map[string]any {
	fields := encodeMutable(rec)
	fields[fieldSecret] = totpx.EncodeSecret(rec.Secret)
	fields[fieldCreatedAt] = formatTime(rec.CreatedAt)
	return fields
}

func encodeMutable(rec domain.UserRecord) map[string]any {
	fields := map[string]any{
		fieldLabel:     rec.Label,
		fieldVerified:  boolField(rec.Verified),
		fieldUpdatedAt: formatTime(rec.UpdatedAt),
		fieldVersion:   rec.Version,
	}
	if rec.LastCounter != nil {
		fields[fieldLastCounter] = *rec.LastCounter
	}
	if rec.VerifiedAt != nil {
		fields[fieldVerifiedAt] = formatTime(*rec.VerifiedAt)
	}
	return fields
}

func decodeRecord(id string, fields map[string]string) (domain.UserRecord, error) {
	secret, err := totpx.DecodeSecret(fields[fieldSecret])
	if err != nil {
		return domain.UserRecord{}, fmt.Errorf("decode secret of %s: %w", id, err)
	}

	rec := domain.UserRecord{
		ID:       id,
		Secret:   secret,
		Label:    fields[fieldLabel],
		Verified: fields[fieldVerified] == "1",
	}

	if rec.CreatedAt, err = parseTime(fields[fieldCreatedAt]); err != nil {
		return domain.UserRecord{}, fmt.Errorf("decode created_at of %s: %w", id, err)
	}
	if rec.UpdatedAt, err = parseTime(fields[fieldUpdatedAt]); err != nil {
		return domain.UserRecord{}, fmt.Errorf("decode updated_at of %s: %w", id, err)
	}
	if rec.Version, err = strconv.ParseInt(fields[fieldVersion], 10, 64); err != nil {
		return domain.UserRecord{}, fmt.Errorf("decode version of %s: %w", id, err)
	}

	if v, ok := fields[fieldLastCounter]; ok {
		counter, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.UserRecord{}, fmt.Errorf("decode last_counter of %s: %w", id, err)
		}
		rec.LastCounter = &counter
	}
	if v, ok := fields[fieldVerifiedAt]; ok {
		at, err := parseTime(v)
		if err != nil {
			return domain.UserRecord{}, fmt.Errorf("decode verified_at of %s: %w", id, err)
		}
		rec.VerifiedAt = &at
	}

	return rec, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
