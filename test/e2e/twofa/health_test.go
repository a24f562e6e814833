package twofa_test

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLivezEndpoint(t *testing.T) {
	client := setupService(t)

	health, err := client.GetLiveness(t.Context())
	assertHealthy(t, health, err)
}

func TestReadyzEndpoint(t *testing.T) {
	client := setupService(t)

	health, err := client.GetReadiness(t.Context())
	assertHealthy(t, health, err)
	require.NotNil(t, health.Checks)
	require.Equal(t, "ok", health.Checks.Store)
}

func TestWelcomeEndpoint(t *testing.T) {
	client := setupService(t)

	welcome, err := client.Welcome(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, welcome.Response)
}
