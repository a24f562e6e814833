package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/twofa/internal/twofa/store"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "twofa:"

var ErrNotReady = errors.New("redis did not become ready within the given time period")

type Config struct {
	URL            string
	KeyPrefix      string
	ConnectTimeout time.Duration
	RetryAttempts  int
	RetryInterval  time.Duration
}

// Store keeps each record in a hash and tracks unverified identities in a
// sorted set scored by creation time, so housekeeping never scans keys.
type Store struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// Connect dials cfg.URL, retrying until the server answers a PING.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var lastErr error
	for attempt := range cfg.RetryAttempts {
		client := redis.NewClient(opts)
		lastErr = client.Ping(ctx).Err()
		if lastErr == nil {
			return NewStore(client, cfg.KeyPrefix), nil
		}
		_ = client.Close()

		if attempt == cfg.RetryAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, lastErr, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrNotReady, lastErr)
}

// NewStore wraps an existing client.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Records() store.Records {
	return &recordsRepo{client: s.client, prefix: s.prefix, now: s.now}
}

// ApplyMigrations is a no-op; hashes carry no schema.
func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
