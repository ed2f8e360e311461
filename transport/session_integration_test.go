package transport_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/apifake"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/transport"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "root@example.com"
	adminPassword = "correct horse"
)

type stack struct {
	api        *apifake.Server
	store      *token.MemoryStore
	session    *sessions.Session
	client     *http.Client
	mu         sync.Mutex
	terminated []error
}

func setupStack(t *testing.T) *stack {
	t.Helper()

	api := apifake.New()
	t.Cleanup(api.Close)
	api.AddAccount(adminEmail, adminPassword, users.NewProfile("u1", "Root", adminEmail, []string{"admin"}, []string{"users.read"}))

	st := &stack{api: api, store: token.NewMemoryStore()}
	pipeline := transport.New(nil,
		transport.WithLogger(zerolog.Nop()),
		transport.WithTerminationHandler(func(err error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			st.terminated = append(st.terminated, err)
		}),
	)
	st.client = pipeline.Client()

	idp, err := identity.NewClient(api.APIURL(), st.client)
	require.NoError(t, err)
	st.session, err = sessions.New(st.store, idp, sessions.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	pipeline.Attach(st.session)

	require.NoError(t, st.session.Login(context.Background(), identity.LoginRequest{Email: adminEmail, Password: adminPassword}))
	require.True(t, st.session.HasRole("admin"))
	return st
}

func (st *stack) terminations() []error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]error(nil), st.terminated...)
}

type requestList struct {
	Data []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Status string `json:"status"`
	} `json:"data"`
}

func (st *stack) listRequests(t *testing.T) (int, requestList) {
	t.Helper()
	resp, err := st.client.Get(st.api.APIURL() + "/requests")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out requestList
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, out
}

func TestExpiredAccessIsRenewedTransparently(t *testing.T) {
	st := setupStack(t)

	status, before := st.listRequests(t)
	require.Equal(t, http.StatusOK, status)

	st.api.ExpireAccess()
	status, after := st.listRequests(t)

	require.Equal(t, http.StatusOK, status)
	require.Equal(t, before, after)
	require.Equal(t, 1, st.api.Calls().Refresh)
	require.Empty(t, st.terminations())

	stored, _ := st.store.Load(token.Access)
	held, _ := st.session.AccessToken()
	require.Equal(t, held, stored)
}

func TestPostBodyIsReplayed(t *testing.T) {
	st := setupStack(t)
	st.api.ExpireAccess()

	resp, err := st.client.Post(st.api.APIURL()+"/requests", "application/json", strings.NewReader(`{"title":"VPN down"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Data struct {
			Title string `json:"title"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "VPN down", out.Data.Title)

	ids := st.api.RequestIDs()
	require.Len(t, ids, 2)
	require.Equal(t, ids[0], ids[1])
}

func TestConcurrentRejectionsShareOneRenewal(t *testing.T) {
	st := setupStack(t)
	st.api.RotateRefresh()
	st.api.ExpireAccess()
	started, release := st.api.BlockRefresh()

	const n = 6
	statuses := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _ := st.listRequests(t)
			statuses <- status
		}()
	}

	<-started
	time.Sleep(100 * time.Millisecond)
	require.Len(t, statuses, 0, "no request may complete before the renewal resolves")
	release()
	wg.Wait()
	close(statuses)

	for status := range statuses {
		require.Equal(t, http.StatusOK, status)
	}
	require.Equal(t, 1, st.api.Calls().Refresh)
	require.True(t, st.session.Authenticated())
	require.Empty(t, st.terminations())
}

func TestRevokedRefreshEndsSession(t *testing.T) {
	st := setupStack(t)
	st.api.ExpireAccess()
	st.api.RevokeRefresh()

	status, _ := st.listRequests(t)

	require.Equal(t, http.StatusUnauthorized, status)
	require.False(t, st.session.Authenticated())
	require.Nil(t, st.session.Identity())
	for _, kind := range token.Kinds {
		_, ok := st.store.Load(kind)
		require.False(t, ok)
	}

	terminated := st.terminations()
	require.Len(t, terminated, 1)
	require.ErrorIs(t, terminated[0], apperrors.ErrRefreshInvalid)
}

func TestFailedRenewalDoesNotEndSessionReplacedMidExchange(t *testing.T) {
	st := setupStack(t)
	st.api.ExpireAccess()
	st.api.RevokeRefresh()
	started, release := st.api.BlockRefresh()

	statuses := make(chan int, 1)
	go func() {
		resp, err := st.client.Get(st.api.APIURL() + "/requests")
		if err != nil {
			statuses <- 0
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		statuses <- resp.StatusCode
	}()

	<-started
	require.NoError(t, st.session.Login(context.Background(), identity.LoginRequest{Email: adminEmail, Password: adminPassword}))
	fresh, ok := st.session.RefreshToken()
	require.True(t, ok)
	release()

	require.Equal(t, http.StatusOK, <-statuses)
	require.True(t, st.session.Authenticated())
	held, _ := st.session.RefreshToken()
	require.Equal(t, fresh, held)
	require.Zero(t, st.api.Calls().Logout)
	require.Empty(t, st.terminations())

	status, _ := st.listRequests(t)
	require.Equal(t, http.StatusOK, status)
}

func TestProfileFetchRenewsThroughPipeline(t *testing.T) {
	st := setupStack(t)
	st.api.ExpireAccess()

	st.session.LoadProfile(context.Background())

	require.True(t, st.session.HasRole("admin"))
	require.Equal(t, 1, st.api.Calls().Refresh)
}
