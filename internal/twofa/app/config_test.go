package app

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/twofa/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "STORE_DRIVER", "TWOFA_DATABASE_FILE", "TOTP_ISSUER", "TOTP_DIGITS",
		"TOTP_ENROLL_WINDOW", "TOTP_VALIDATE_WINDOW", "TOTP_REPLAY_PROTECTION", "UNVERIFIED_TTL",
		"RATELIMIT_REGISTER_REQUESTS", "RATELIMIT_REGISTER_BURST", "RATELIMIT_REGISTER_WINDOW_SEC",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	require.Equal(t, "twofa.db", cfg.DatabaseFile)
	require.Equal(t, "twofa", cfg.Issuer)
	require.Equal(t, 6, cfg.Digits)
	require.Equal(t, 30, cfg.Period)
	require.Equal(t, 1, cfg.EnrollWindow)
	require.Equal(t, 0, cfg.ValidateWindow)
	require.False(t, cfg.ReplayProtection)
	require.Zero(t, cfg.UnverifiedTTL)
	require.Equal(t, httpx.RegisterLimit, cfg.RegisterLimit)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TOTP_DIGITS", "8")
	t.Setenv("TOTP_ALGORITHM", "sha256")
	t.Setenv("TOTP_ENROLL_WINDOW", "2")
	t.Setenv("TOTP_REPLAY_PROTECTION", "true")
	t.Setenv("UNVERIFIED_TTL", "24h")
	t.Setenv("HOUSEKEEPING_INTERVAL", "15")
	t.Setenv("RATELIMIT_REGISTER_REQUESTS", "3")
	t.Setenv("TRUST_PROXY_HEADERS", "1")

	cfg := LoadConfig()
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, StoreDriverRedis, cfg.StoreDriver)
	require.Equal(t, 8, cfg.Digits)
	require.Equal(t, "sha256", cfg.Algorithm)
	require.Equal(t, 2, cfg.EnrollWindow)
	require.True(t, cfg.ReplayProtection)
	require.Equal(t, 24*time.Hour, cfg.UnverifiedTTL)
	require.Equal(t, 15*time.Minute, cfg.HousekeepingInterval)
	require.Equal(t, 3, cfg.RegisterLimit.RequestsPerWindow)
	require.True(t, cfg.TrustProxyHeaders)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("TOTP_REPLAY_PROTECTION", "maybe")
	t.Setenv("SHUTDOWN_GRACE_PERIOD", "soon")

	cfg := LoadConfig()
	require.Equal(t, 8080, cfg.Port)
	require.False(t, cfg.ReplayProtection)
	require.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	base := Config{StoreDriver: StoreDriverSQLite, DatabaseFile: "x.db", Period: 30, EnrollWindow: 1}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.StoreDriver = "postgres" }},
		{"redis without url", func(c *Config) { c.StoreDriver = StoreDriverRedis }},
		{"empty database file", func(c *Config) { c.DatabaseFile = "" }},
		{"zero period", func(c *Config) { c.Period = 0 }},
		{"negative window", func(c *Config) { c.ValidateWindow = -1 }},
		{"window too large", func(c *Config) { c.EnrollWindow = 11 }},
		{"negative ttl", func(c *Config) { c.UnverifiedTTL = -time.Hour }},
	}

	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
