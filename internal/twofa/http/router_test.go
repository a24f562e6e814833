package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/twofa/internal/twofa/service"
	"github.com/aussiebroadwan/twofa/internal/twofa/store/drivers/sqlite"
	"github.com/aussiebroadwan/twofa/pkg/authsdk"
	"github.com/aussiebroadwan/twofa/pkg/cryptox"
	"github.com/aussiebroadwan/twofa/pkg/httpx"
	"github.com/aussiebroadwan/twofa/pkg/idx"
	"github.com/aussiebroadwan/twofa/pkg/slogx"
	"github.com/aussiebroadwan/twofa/pkg/totpx"
	"github.com/pquerna/otp"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1_700_000_000, 0).UTC()

type testEnv struct {
	router *Router
	store  *sqlite.Store
	svc    *service.EnrollmentService
}

func newTestEnv(t *testing.T, configure ...func(*Router)) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	engine, err := totpx.NewEngine(totpx.Options{})
	require.NoError(t, err)
	secrets, err := totpx.NewSecretGenerator(0, nil)
	require.NoError(t, err)

	svc := &service.EnrollmentService{
		Store:          st,
		Engine:         engine,
		Secrets:        secrets,
		Identities:     cryptox.NewIdentityGenerator(nil),
		Issuer:         "twofa-test",
		EnrollWindow:   service.DefaultEnrollWindow,
		ValidateWindow: service.DefaultValidateWindow,
		Now:            func() time.Time { return testNow },
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter("test", st, svc, logger)
	for _, fn := range configure {
		fn(router)
	}
	router.ApplyRoutes()

	return &testEnv{router: router, store: st, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T) authsdk.RegistrationResponse {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/registration", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var reg authsdk.RegistrationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	return reg
}

func (e *testEnv) code(t *testing.T, userKey string, offset int64) string {
	t.Helper()

	secret, err := totpx.DecodeSecret(userKey)
	require.NoError(t, err)
	return e.svc.Engine.CodeAt(secret, e.svc.Engine.CounterAt(testNow)+offset)
}

func keyBody(t *testing.T, userID, code string) string {
	t.Helper()
	buf, err := json.Marshal(authsdk.KeyRequest{UserID: userID, UserToken: code})
	require.NoError(t, err)
	return string(buf)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWelcome(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, msgWelcome, decode[authsdk.WelcomeResponse](t, rec).Response)
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, authsdk.ErrorCodeNotFound, decode[authsdk.ErrorResponse](t, rec).Error)
}

func TestRegistration(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/registration", `{"label":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	reg := decode[authsdk.RegistrationResponse](t, rec)
	require.Len(t, reg.UserID, 22)
	require.Equal(t, msgRegistered, reg.Response)
	require.True(t, strings.HasPrefix(reg.QRCode, "data:image/png;base64,"))

	secret, err := totpx.DecodeSecret(reg.UserKey)
	require.NoError(t, err)
	require.Len(t, secret, totpx.DefaultSecretSize)

	key, err := otp.NewKeyFromURL(reg.OTPAuthURL)
	require.NoError(t, err)
	require.Equal(t, "twofa-test", key.Issuer())
	require.Equal(t, "alice@example.com", key.AccountName())
	require.Equal(t, reg.UserKey, key.Secret())

	// The record starts unverified.
	rec = env.do(t, http.MethodGet, "/api/users/"+reg.UserID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[authsdk.UserStatusResponse](t, rec)
	require.False(t, status.Verified)
	require.Nil(t, status.VerifiedAt)
	require.NotContains(t, rec.Body.String(), reg.UserKey)
}

func TestRegistration_BadRequests(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"label":`},
		{"invalid label", `{"label":"issuer:account"}`},
		{"trailing data", `{} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/registration", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, authsdk.ErrorCodeInvalidRequest, decode[authsdk.ErrorResponse](t, rec).Error)
		})
	}
}

func TestRegistration_RateLimited(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(r *Router) {
		r.RegisterLimit = httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Hour, Burst: 1}
	})

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/registration", "").Code)

	rec := env.do(t, http.MethodPost, "/api/registration", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, authsdk.ErrorCodeRateLimited, decode[authsdk.ErrorResponse](t, rec).Error)

	// Verification is not limited.
	for range 3 {
		rec = env.do(t, http.MethodPost, "/api/key/verification", keyBody(t, "missing", "123456"))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	metrics := env.do(t, http.MethodGet, "/metrics", "")
	require.Contains(t, metrics.Body.String(), "twofa_registrations_rate_limited_total 1")
}

func TestVerification(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	reg := env.register(t)

	t.Run("wrong code", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/key/verification", keyBody(t, reg.UserID, env.code(t, reg.UserKey, 5)))
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[authsdk.VerificationResponse](t, rec)
		require.False(t, res.Verified)
		require.Equal(t, msgNotVerified, res.Response)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/key/verification", keyBody(t, reg.UserID, " "))
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = env.do(t, http.MethodPost, "/api/key/verification", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/key/verification", keyBody(t, "nobody", "123456"))
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, authsdk.ErrorCodeUnknownUser, decode[authsdk.ErrorResponse](t, rec).Error)
	})

	t.Run("previous step accepted", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/key/verification", keyBody(t, reg.UserID, env.code(t, reg.UserKey, -1)))
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[authsdk.VerificationResponse](t, rec)
		require.True(t, res.Verified)
		require.Equal(t, msgVerified, res.Response)
	})

	t.Run("second confirmation conflicts", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/key/verification", keyBody(t, reg.UserID, env.code(t, reg.UserKey, 0)))
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, authsdk.ErrorCodeAlreadyVerified, decode[authsdk.ErrorResponse](t, rec).Error)
	})
}

func TestValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	reg := env.register(t)

	// Validation works before enrollment is confirmed.
	rec := env.do(t, http.MethodPost, "/api/key/validation", keyBody(t, reg.UserID, env.code(t, reg.UserKey, 0)))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[authsdk.ValidationResponse](t, rec)
	require.True(t, res.Validated)
	require.Equal(t, msgValidated, res.Response)

	// Window zero: the neighbouring step is rejected.
	rec = env.do(t, http.MethodPost, "/api/key/validation", keyBody(t, reg.UserID, env.code(t, reg.UserKey, 1)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decode[authsdk.ValidationResponse](t, rec).Validated)

	rec = env.do(t, http.MethodPost, "/api/key/validation", keyBody(t, "nobody", "123456"))
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Validation never verifies.
	rec = env.do(t, http.MethodGet, "/api/users/"+reg.UserID, "")
	require.False(t, decode[authsdk.UserStatusResponse](t, rec).Verified)
}

func TestUserStatus_Unknown(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/users/nobody", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/livez", "")
	require.Equal(t, http.StatusOK, rec.Code)
	live := decode[authsdk.HealthResponse](t, rec)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	rec = env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[authsdk.HealthResponse](t, rec)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Store)

	require.NoError(t, env.store.Close())

	rec = env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "degraded", decode[authsdk.HealthResponse](t, rec).Status)
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/livez", "")
	generated := rec.Header().Get(slogx.RequestIDHeader)
	_, err := idx.Parse(generated)
	require.NoError(t, err)

	supplied := idx.New().String()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(slogx.RequestIDHeader, supplied)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, supplied, rec.Header().Get(slogx.RequestIDHeader))
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	reg := env.register(t)
	env.do(t, http.MethodPost, "/api/key/validation", keyBody(t, reg.UserID, env.code(t, reg.UserKey, 3)))

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, `twofa_registrations_total{outcome="success"} 1`)
	require.Contains(t, body, `twofa_validations_total{outcome="mismatch"} 1`)
	require.Contains(t, body, `twofa_http_request_duration_seconds_count{code="200",method="post",route="registration"} 1`)
}

func TestSwaggerDoc(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/api/key/verification")
}

// TestEnrollmentScenario drives the whole flow through the client SDK.
func TestEnrollmentScenario(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	client := authsdk.NewSDKClient(srv.URL)
	ctx := context.Background()

	reg, err := client.Register(ctx, authsdk.RegistrationRequest{})
	require.NoError(t, err)

	// Default account name is the user ID.
	key, err := otp.NewKeyFromURL(reg.OTPAuthURL)
	require.NoError(t, err)
	require.Equal(t, reg.UserID, key.AccountName())

	valid, err := client.ValidateKey(ctx, reg.UserID, env.code(t, reg.UserKey, 0))
	require.NoError(t, err)
	require.True(t, valid.Validated)

	status, err := client.GetUserStatus(ctx, reg.UserID)
	require.NoError(t, err)
	require.False(t, status.Verified)

	verified, err := client.VerifyKey(ctx, reg.UserID, env.code(t, reg.UserKey, 1))
	require.NoError(t, err)
	require.True(t, verified.Verified)

	status, err = client.GetUserStatus(ctx, reg.UserID)
	require.NoError(t, err)
	require.True(t, status.Verified)
	require.NotNil(t, status.VerifiedAt)
	require.WithinDuration(t, testNow, *status.VerifiedAt, time.Millisecond)

	_, err = client.VerifyKey(ctx, reg.UserID, env.code(t, reg.UserKey, 0))
	require.ErrorIs(t, err, authsdk.ErrAlreadyVerified)

	valid, err = client.ValidateKey(ctx, reg.UserID, env.code(t, reg.UserKey, 0))
	require.NoError(t, err)
	require.True(t, valid.Validated)

	_, err = client.ValidateKey(ctx, "nobody", "123456")
	require.ErrorIs(t, err, authsdk.ErrUnknownUser)
}

func TestRegistration_BodyTooLarge(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	big := `{"label":"` + string(bytes.Repeat([]byte("a"), httpx.MaxBodyBytes)) + `"}`
	rec := env.do(t, http.MethodPost, "/api/registration", big)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
