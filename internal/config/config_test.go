package config_test

import (
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("API_URL", "")
	t.Setenv("LOGIN_PATH", "")
	t.Setenv("LANDING_PATH", "")
	t.Setenv("TOKEN_SEAL_KEY", "")

	c := config.New()
	require.Equal(t, "http://localhost:3000/api", c.GetAPIURL())
	require.Equal(t, "/login", c.GetLoginPath())
	require.Equal(t, "/dashboard", c.GetLandingPath())

	key, err := c.GetTokenSealKey()
	require.NoError(t, err)
	require.Nil(t, key)
}

func TestAPIURLTrimsTrailingSlash(t *testing.T) {
	t.Setenv("API_URL", "https://console.example.com/api/")
	require.Equal(t, "https://console.example.com/api", config.New().GetAPIURL())
}

func TestTokenFileOverride(t *testing.T) {
	t.Setenv("TOKEN_FILE", "/tmp/custom-tokens.json")
	require.Equal(t, "/tmp/custom-tokens.json", config.New().GetTokenFile())
}

func TestTokenFileXDG(t *testing.T) {
	t.Setenv("TOKEN_FILE", "")
	t.Setenv("XDG_CONFIG_HOME", "/home/tester/.cfg")
	require.Equal(t, "/home/tester/.cfg/admin-console/tokens.json", config.New().GetTokenFile())
}

func TestTokenSealKey(t *testing.T) {
	t.Setenv("TOKEN_SEAL_KEY", strings.Repeat("ab", 32))
	key, err := config.New().GetTokenSealKey()
	require.NoError(t, err)
	require.NotNil(t, key)
	require.Equal(t, byte(0xab), key[0])

	t.Setenv("TOKEN_SEAL_KEY", "abcd")
	_, err = config.New().GetTokenSealKey()
	require.Error(t, err)

	t.Setenv("TOKEN_SEAL_KEY", "zz")
	_, err = config.New().GetTokenSealKey()
	require.Error(t, err)
}
