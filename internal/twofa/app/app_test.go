package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/twofa/internal/twofa/store/drivers/sqlite"
	"github.com/aussiebroadwan/twofa/pkg/authsdk"
	"github.com/aussiebroadwan/twofa/pkg/cryptox"
	"github.com/aussiebroadwan/twofa/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Env:                 "test",
		LogLevel:            "error",
		Port:                0,
		ShutdownGracePeriod: time.Second,
		StoreDriver:         StoreDriverSQLite,
		DatabaseFile:        ":memory:",
		Issuer:              "twofa-test",
		SecretBytes:         20,
		Digits:              6,
		Period:              30,
		Algorithm:           "SHA1",
		EnrollWindow:        1,
		UnverifiedTTL:       time.Hour,
		RegisterLimit:       httpx.RegisterLimit,
	}
}

func TestNew_ServesRequests(t *testing.T) {
	t.Setenv(MasterKeyEnv, "")

	application, err := New(testConfig())
	require.NoError(t, err)
	require.NotNil(t, application.housekeepingService)

	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/registration", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var reg authsdk.RegistrationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	require.NotEmpty(t, reg.UserID)

	require.NoError(t, application.Shutdown())
}

func TestRun_ReleasesResourcesWhenListenFails(t *testing.T) {
	t.Setenv(MasterKeyEnv, "")

	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig()
	cfg.Port = busy.Addr().(*net.TCPAddr).Port

	application, err := New(cfg)
	require.NoError(t, err)

	err = application.Run()
	require.ErrorContains(t, err, "server failed")

	require.Error(t, application.db.Ping(context.Background()), "store is closed")
}

func TestNew_RejectsBadTOTPSettings(t *testing.T) {
	t.Setenv(MasterKeyEnv, "")

	cfg := testConfig()
	cfg.Digits = 7
	_, err := New(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.Algorithm = "md5"
	_, err = New(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.StoreDriver = "etcd"
	_, err = New(cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSqliteDSN(t *testing.T) {
	t.Parallel()

	require.Equal(t, ":memory:", sqliteDSN(":memory:"))
	require.Equal(t, "file:data/twofa.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", sqliteDSN("data/twofa.db"))
}

func TestInitSealing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	t.Run("disabled without key", func(t *testing.T) {
		t.Setenv(MasterKeyEnv, "")

		got, err := InitSealing(Config{}, st, logger)
		require.NoError(t, err)
		require.Equal(t, st, got)
	})

	t.Run("enabled from env", func(t *testing.T) {
		t.Setenv(MasterKeyEnv, "0123456789abcdef0123456789abcdef")

		got, err := InitSealing(Config{}, st, logger)
		require.NoError(t, err)
		require.NotEqual(t, st, got)
	})

	t.Run("empty key file is an error", func(t *testing.T) {
		t.Setenv(MasterKeyEnv, "")

		path := filepath.Join(t.TempDir(), "master.key")
		require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))

		_, err := InitSealing(Config{MasterKeyPath: path}, st, logger)
		require.ErrorIs(t, err, cryptox.ErrMasterKeyMissing)
	})

	t.Run("short key is an error", func(t *testing.T) {
		t.Setenv(MasterKeyEnv, "short")

		_, err := InitSealing(Config{}, st, logger)
		require.ErrorIs(t, err, cryptox.ErrMasterKeyTooShort)
	})
}
