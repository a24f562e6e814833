package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/twofa/internal/twofa/service"
	"github.com/aussiebroadwan/twofa/internal/twofa/store/drivers/redis"
	"github.com/aussiebroadwan/twofa/pkg/httpx"
	"github.com/aussiebroadwan/twofa/pkg/totpx"
)

const (
	StoreDriverSQLite = "sqlite"
	StoreDriverRedis  = "redis"

	// MasterKeyEnv holds the sealing key when TWOFA_MASTER_KEY_PATH is unset.
	MasterKeyEnv = "TWOFA_MASTER_KEY"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)

	StoreDriver    string // Record store backend (sqlite, redis) (default: sqlite)
	DatabaseFile   string // Optional: path to SQLite database file (default: ./twofa.db)
	RedisURL       string // Required for the redis driver
	RedisKeyPrefix string // Optional: prefix for every redis key (default: twofa:)
	MasterKeyPath  string // Optional: file holding the secret sealing key (falls back to TWOFA_MASTER_KEY)

	Issuer           string // Issuer shown in authenticator apps (default: twofa)
	SecretBytes      int    // Shared secret length (default: 20, min: 16)
	Digits           int    // Code length, 6 or 8 (default: 6)
	Period           int    // Time step in seconds (default: 30)
	Algorithm        string // HMAC algorithm (SHA1, SHA256, SHA512) (default: SHA1)
	EnrollWindow     int    // Steps of drift accepted when confirming enrollment (default: 1)
	ValidateWindow   int    // Steps of drift accepted on validation (default: 0)
	ReplayProtection bool   // Reject codes at or before the last accepted step (default: false)

	UnverifiedTTL        time.Duration // Purge unverified registrations older than this; 0 disables (default: 0)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	RegisterLimit     httpx.RateLimitConfig // RATELIMIT_REGISTER_* overrides
	TrustProxyHeaders bool                  // Key the registration limiter on X-Forwarded-For (default: false)
}

func LoadConfig() Config {
	return Config{
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		StoreDriver:    strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreDriverSQLite)),
		DatabaseFile:   getEnvOrDefault("TWOFA_DATABASE_FILE", "twofa.db"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisKeyPrefix: getEnvOrDefault("REDIS_KEY_PREFIX", redis.DefaultKeyPrefix),
		MasterKeyPath:  os.Getenv("TWOFA_MASTER_KEY_PATH"),

		Issuer:           getEnvOrDefault("TOTP_ISSUER", "twofa"),
		SecretBytes:      getEnvIntOrDefault("TOTP_SECRET_BYTES", totpx.DefaultSecretSize),
		Digits:           getEnvIntOrDefault("TOTP_DIGITS", 6),
		Period:           getEnvIntOrDefault("TOTP_PERIOD", totpx.DefaultPeriod),
		Algorithm:        getEnvOrDefault("TOTP_ALGORITHM", "SHA1"),
		EnrollWindow:     getEnvIntOrDefault("TOTP_ENROLL_WINDOW", service.DefaultEnrollWindow),
		ValidateWindow:   getEnvIntOrDefault("TOTP_VALIDATE_WINDOW", service.DefaultValidateWindow),
		ReplayProtection: getEnvBoolOrDefault("TOTP_REPLAY_PROTECTION", false),

		UnverifiedTTL:        getEnvDurationOrDefault("UNVERIFIED_TTL", 0),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),

		RegisterLimit:     httpx.ParseRateLimitFromEnv("REGISTER", httpx.RegisterLimit),
		TrustProxyHeaders: getEnvBoolOrDefault("TRUST_PROXY_HEADERS", false),
	}
}

// Validate checks the settings that are not validated by the component
// constructors.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverSQLite:
		if c.DatabaseFile == "" {
			return fmt.Errorf("%w: TWOFA_DATABASE_FILE is empty", ErrInvalidConfig)
		}
	case StoreDriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: REDIS_URL is required for the redis store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalidConfig, c.StoreDriver)
	}

	if c.Period <= 0 {
		return fmt.Errorf("%w: TOTP_PERIOD must be positive", ErrInvalidConfig)
	}
	if c.EnrollWindow < 0 || c.ValidateWindow < 0 {
		return fmt.Errorf("%w: TOTP windows must not be negative", ErrInvalidConfig)
	}
	if c.EnrollWindow > totpx.MaxWindow || c.ValidateWindow > totpx.MaxWindow {
		return fmt.Errorf("%w: TOTP windows must not exceed %d", ErrInvalidConfig, totpx.MaxWindow)
	}
	if c.UnverifiedTTL < 0 {
		return fmt.Errorf("%w: UNVERIFIED_TTL must not be negative", ErrInvalidConfig)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
