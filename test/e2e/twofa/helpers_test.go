package twofa_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/aussiebroadwan/twofa/internal/twofa/app"
	"github.com/aussiebroadwan/twofa/pkg/authsdk"
	"github.com/aussiebroadwan/twofa/pkg/httpx"
)

/*
 * End-to-end tests run the fully wired application in process against a
 * throwaway Redis, with secret sealing enabled, and drive it over HTTP with
 * the SDK client. Codes are produced by an independent TOTP implementation,
 * the way an authenticator app would.
 */

const testMasterKey = "e2e-master-key-0123456789abcdef"

// relaxedLimit keeps rapid test traffic clear of the registration limiter.
var relaxedLimit = httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}

// startRedis starts a Redis container and returns its connection URL.
func startRedis(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return url
}

// setupService starts the application and returns an SDK client for it.
func setupService(t *testing.T, mutate ...func(*app.Config)) *authsdk.SDKClient {
	t.Helper()

	t.Setenv(app.MasterKeyEnv, testMasterKey)

	cfg := app.Config{
		Env:                 "test",
		LogLevel:            "warn",
		LogFormat:           "json",
		ShutdownGracePeriod: 5 * time.Second,
		StoreDriver:         app.StoreDriverRedis,
		RedisURL:            startRedis(t),
		RedisKeyPrefix:      "e2e:",
		Issuer:              "twofa-e2e",
		SecretBytes:         20,
		Digits:              6,
		Period:              30,
		Algorithm:           "SHA1",
		EnrollWindow:        1,
		ValidateWindow:      1, // absorbs a step rollover between generating and checking
		RegisterLimit:       relaxedLimit,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	application, err := app.New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, application.Shutdown())
	})

	return authsdk.NewSDKClient(srv.URL)
}

// currentCode returns the code an authenticator app shows right now.
func currentCode(t *testing.T, userKey string) string {
	t.Helper()

	code, err := totp.GenerateCode(userKey, time.Now())
	require.NoError(t, err)
	return code
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
