package console_test

import (
	"context"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/console"
	"github.com/jrsteele09/go-auth-client/guard"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/apifake"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	supervisorEmail    = "sup@example.com"
	supervisorPassword = "s3cret"
)

func setupAPI(t *testing.T) *apifake.Server {
	t.Helper()
	api := apifake.New()
	t.Cleanup(api.Close)
	api.AddAccount(supervisorEmail, supervisorPassword,
		users.NewProfile("u2", "Sam", supervisorEmail, []string{"supervisor"}, nil))

	t.Setenv("API_URL", api.APIURL())
	t.Setenv("TOKEN_FILE", filepath.Join(t.TempDir(), "tokens.json"))
	t.Setenv("TOKEN_SEAL_KEY", hex.EncodeToString(make([]byte, 32)))
	t.Setenv("ROUTES_FILE", "")
	t.Setenv("LOGIN_PATH", "")
	t.Setenv("LANDING_PATH", "")
	return api
}

func newConsole(t *testing.T, options ...console.Option) *console.Console {
	t.Helper()
	c, err := console.New(config.New(), append([]console.Option{console.WithLogger(zerolog.Nop())}, options...)...)
	require.NoError(t, err)
	return c
}

func login(t *testing.T, c *console.Console) {
	t.Helper()
	err := c.Session().Login(context.Background(), identity.LoginRequest{Email: supervisorEmail, Password: supervisorPassword})
	require.NoError(t, err)
}

func TestLoginThenNavigate(t *testing.T) {
	setupAPI(t)
	c := newConsole(t)
	login(t, c)

	result, err := c.Router().Navigate("/dashboard/manage-requests")
	require.NoError(t, err)
	require.True(t, result.Allowed())

	result, err = c.Router().Navigate("/dashboard/users")
	require.NoError(t, err)
	require.Equal(t, guard.RedirectForbidden, result.Decision)
	require.Equal(t, "/dashboard", result.Target)
}

func TestSessionSurvivesRestart(t *testing.T) {
	setupAPI(t)
	first := newConsole(t)
	login(t, first)

	second := newConsole(t)
	require.True(t, second.Session().Authenticated())
	require.Nil(t, second.Session().Identity())

	second.Start(context.Background())
	require.NotNil(t, second.Session().Identity())
	require.True(t, second.Session().HasRole("supervisor"))
}

func TestStartWithoutSessionIsNoop(t *testing.T) {
	api := setupAPI(t)
	c := newConsole(t)
	c.Start(context.Background())
	require.Zero(t, api.Calls().Profile)
}

func TestExpiredAccessRenewedTransparently(t *testing.T) {
	api := setupAPI(t)
	c := newConsole(t)
	login(t, c)
	before, _ := c.Session().AccessToken()

	api.ExpireAccess()
	resp, err := c.Get(context.Background(), "/requests")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	after, _ := c.Session().AccessToken()
	require.NotEqual(t, before, after)
	require.Equal(t, 1, api.Calls().Refresh)
}

func TestRevokedRefreshEndsSession(t *testing.T) {
	api := setupAPI(t)
	store := token.NewMemoryStore()
	c := newConsole(t, console.WithStore(store))
	login(t, c)

	api.ExpireAccess()
	api.RevokeRefresh()
	resp, err := c.Get(context.Background(), "/requests")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	select {
	case err := <-c.Terminations():
		require.ErrorIs(t, err, apperrors.ErrRefreshInvalid)
	case <-time.After(time.Second):
		t.Fatal("no termination reported")
	}

	require.False(t, c.Session().Authenticated())
	require.Empty(t, store.Snapshot())

	result, err := c.Router().Navigate("/dashboard/requests")
	require.NoError(t, err)
	require.Equal(t, guard.RedirectNoSession, result.Decision)
	require.Equal(t, "/login", result.Target)
}

func TestRoutesFile(t *testing.T) {
	setupAPI(t)
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - name: audit\n    path: /audit\n    requiresRole: auditor\n"), 0o600))
	t.Setenv("ROUTES_FILE", path)
	t.Setenv("LANDING_PATH", "/home")

	c := newConsole(t)
	login(t, c)

	require.Len(t, c.Router().Routes(), 1)
	result, err := c.Router().Navigate("/audit")
	require.NoError(t, err)
	require.Equal(t, guard.RedirectForbidden, result.Decision)
	require.Equal(t, "/home", result.Target)
}

func TestBadConfigFails(t *testing.T) {
	setupAPI(t)
	t.Setenv("TOKEN_SEAL_KEY", "not-hex")
	_, err := console.New(config.New(), console.WithLogger(zerolog.Nop()))
	require.Error(t, err)

	t.Setenv("TOKEN_SEAL_KEY", "")
	t.Setenv("ROUTES_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = console.New(config.New(), console.WithLogger(zerolog.Nop()))
	require.Error(t, err)
}
