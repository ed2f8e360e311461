package guard_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-auth-client/guard"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func serve(router *guard.Router, path string) *httptest.ResponseRecorder {
	handler := router.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMiddlewareRedirects(t *testing.T) {
	noSession := guard.NewRouter(guard.New(fakePrincipal{}), guard.DefaultRoutes())
	rec := serve(noSession, "/dashboard/users")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login", rec.Header().Get("Location"))

	supervisor := guard.NewRouter(guard.New(fakePrincipal{access: "a1", profile: withRoles("supervisor")}), guard.DefaultRoutes())
	rec = serve(supervisor, "/dashboard/users")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/dashboard", rec.Header().Get("Location"))

	rec = serve(supervisor, "/dashboard/manage-requests")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewarePassesPublicAndUnknown(t *testing.T) {
	router := guard.NewRouter(guard.New(fakePrincipal{}), guard.DefaultRoutes())
	require.Equal(t, http.StatusOK, serve(router, "/login").Code)
	require.Equal(t, http.StatusOK, serve(router, "/static/app.css").Code)
}

func TestMiddlewareGuardsSubPaths(t *testing.T) {
	noSession := guard.NewRouter(guard.New(fakePrincipal{}), guard.DefaultRoutes())
	for _, path := range []string{"/dashboard/users/42", "/dashboard/roles/edit", "/dashboard/unlisted", "/dashboard/users/42/"} {
		rec := serve(noSession, path)
		require.Equal(t, http.StatusSeeOther, rec.Code, path)
		require.Equal(t, "/login", rec.Header().Get("Location"), path)
	}

	supervisor := guard.NewRouter(guard.New(fakePrincipal{access: "a1", profile: withRoles("supervisor")}), guard.DefaultRoutes())
	rec := serve(supervisor, "/dashboard/users/42")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/dashboard", rec.Header().Get("Location"))

	require.Equal(t, http.StatusOK, serve(supervisor, "/dashboard/manage-requests/7").Code)
	require.Equal(t, http.StatusOK, serve(noSession, "/reset-password/abc123").Code)
}

func TestMiddlewareLogsThroughRouterLogger(t *testing.T) {
	var buf bytes.Buffer
	router := guard.NewRouter(guard.New(fakePrincipal{}), guard.DefaultRoutes(),
		guard.WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	serve(router, "/dashboard/users")
	require.Contains(t, buf.String(), "navigation redirected")
	require.Contains(t, buf.String(), "/dashboard/users")
}
