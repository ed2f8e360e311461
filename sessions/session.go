// Package sessions holds the authoritative in-memory record of who is signed
// in and with which credentials. A single Session is constructed per run and
// handed to the transport pipeline and the access guard.
//
// Only Login, Register, Refresh and Logout (plus the profile load they
// trigger) mutate the session. Everything else reads it.
package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Status tells whether a login or registration is in progress.
type Status int

const (
	StatusIdle Status = iota
	StatusAuthenticating
)

func (s Status) String() string {
	if s == StatusAuthenticating {
		return "authenticating"
	}
	return "idle"
}

// IdentityProvider is the server-side identity collaborator.
type IdentityProvider interface {
	Login(ctx context.Context, req identity.LoginRequest) (*identity.TokenPair, error)
	Register(ctx context.Context, req identity.RegisterRequest) (*identity.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	FetchProfile(ctx context.Context) (*users.Profile, error)
}

// Session is the current user, their credentials and the operations that change them.
type Session struct {
	store  token.Store
	idp    IdentityProvider
	logger zerolog.Logger

	mu             sync.RWMutex
	identity       *users.Profile
	accessToken    *string
	refreshToken   *string
	authenticating int
	generation     uint64 // bumped whenever the credential pair is replaced or cleared

	renewals singleflight.Group
	nowTime  func() time.Time
}

// Option defines a function type to modify the Session instance.
type Option func(*Session)

// WithLogger overrides the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Session) {
		s.nowTime = nowFunc
	}
}

// New builds a Session hydrated from store. Tokens found in the store are
// held immediately; identity stays absent until LoadProfile succeeds.
func New(store token.Store, idp IdentityProvider, options ...Option) (*Session, error) {
	if store == nil {
		return nil, errors.New("[sessions.New] store is required")
	}
	if idp == nil {
		return nil, errors.New("[sessions.New] identity provider is required")
	}

	s := &Session{
		store:   store,
		idp:     idp,
		logger:  log.Logger,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	if v, ok := store.Load(token.Access); ok {
		s.accessToken = utils.Ptr(v)
	}
	if v, ok := store.Load(token.Refresh); ok {
		s.refreshToken = utils.Ptr(v)
	}
	return s, nil
}

// Login exchanges the credentials for a token pair, persists it, then loads
// the profile. A failed profile load leaves the session authenticated but
// without identity; it is not a login failure.
func (s *Session) Login(ctx context.Context, req identity.LoginRequest) error {
	s.beginAuthenticating()
	defer s.endAuthenticating()

	pair, err := s.idp.Login(ctx, req)
	if err != nil {
		return apperrors.Wrapf(err, "login")
	}

	s.replaceCredentials(pair)
	s.logger.Info().Str("email", req.Email).Msg("signed in")
	s.LoadProfile(ctx)
	return nil
}

// Register creates an account and signs into it the same way Login does.
func (s *Session) Register(ctx context.Context, req identity.RegisterRequest) error {
	s.beginAuthenticating()
	defer s.endAuthenticating()

	pair, err := s.idp.Register(ctx, req)
	if err != nil {
		return apperrors.Wrapf(err, "register")
	}

	s.replaceCredentials(pair)
	s.logger.Info().Str("email", req.Email).Msg("account registered")
	s.LoadProfile(ctx)
	return nil
}

// Refresh obtains a new access credential. It succeeds without doing
// anything when no refresh credential is held.
//
// Concurrent callers holding the same refresh credential share one exchange
// and its outcome. The exchange is detached from the first caller's
// cancellation so one abandoned request cannot end the session for the rest.
//
// Any exchange failure ends the session: Logout runs before the error is
// returned, and the error matches ErrRefreshInvalid.
func (s *Session) Refresh(ctx context.Context) error {
	refreshToken, ok := s.RefreshToken()
	if !ok {
		return nil
	}

	detached := context.WithoutCancel(ctx)
	_, err, shared := s.renewals.Do(refreshToken, func() (any, error) {
		return nil, s.renew(detached, refreshToken)
	})
	if shared {
		s.logger.Debug().Msg("joined in-flight credential renewal")
	}
	return err
}

func (s *Session) renew(ctx context.Context, refreshToken string) error {
	pair, err := s.idp.Refresh(ctx, refreshToken)
	if err != nil {
		s.endIfCurrent(ctx, refreshToken, err)
		if apperrors.Is(err, apperrors.ErrRefreshInvalid) {
			return err
		}
		return fmt.Errorf("%w: %w", apperrors.ErrRefreshInvalid, err)
	}

	s.mu.Lock()
	if s.refreshToken == nil || *s.refreshToken != refreshToken {
		// logout or a new login happened while the exchange was in flight
		s.mu.Unlock()
		s.logger.Debug().Msg("discarding renewal for a replaced session")
		return nil
	}
	access := pair.AccessToken
	s.accessToken = utils.Ptr(access)
	s.store.Save(token.Access, access)
	if pair.RefreshToken != "" && pair.RefreshToken != refreshToken {
		s.refreshToken = utils.Ptr(pair.RefreshToken)
		s.store.Save(token.Refresh, pair.RefreshToken)
	}
	s.mu.Unlock()

	event := s.logger.Info()
	if claims, ok := token.Peek(access); ok && !claims.ExpiresAt.IsZero() {
		event = event.Time("expires_at", claims.ExpiresAt)
	}
	event.Msg("access credential renewed")
	return nil
}

// endIfCurrent logs out after a failed renewal, but only the session that
// owned refreshToken. A login that replaced it in the meantime is kept.
func (s *Session) endIfCurrent(ctx context.Context, refreshToken string, cause error) {
	s.mu.RLock()
	owned := s.refreshToken != nil && *s.refreshToken == refreshToken
	generation := s.generation
	s.mu.RUnlock()
	if !owned {
		s.logger.Debug().Msg("renewal failed for a replaced session, keeping the current one")
		return
	}

	s.logger.Warn().Err(cause).Msg("credential renewal failed, ending session")
	defer s.clearGeneration(generation)
	if err := s.idp.Logout(ctx, refreshToken); err != nil {
		s.logger.Debug().Err(err).Msg("server-side revocation failed")
	}
}

// LoadProfile fetches the identity for the current access credential. It
// never fails the caller: on error the identity is cleared and the failure
// logged. A result that arrives after the credentials were replaced or
// cleared is dropped.
func (s *Session) LoadProfile(ctx context.Context) {
	s.mu.RLock()
	generation := s.generation
	s.mu.RUnlock()

	profile, err := s.idp.FetchProfile(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return
	}
	if err != nil {
		s.identity = nil
		s.logger.Warn().Err(err).Msg("profile unavailable, session has no identity")
		return
	}
	s.identity = profile.Clone()
	s.logger.Debug().Str("user_id", profile.ID).Strs("roles", profile.Roles).Msg("profile loaded")
}

// Logout revokes the refresh credential on a best-effort basis and then
// clears identity, both credentials and the store. The local clear runs even
// if revocation fails or panics.
func (s *Session) Logout(ctx context.Context) {
	defer s.clear()

	refreshToken, ok := s.RefreshToken()
	if !ok {
		return
	}
	if err := s.idp.Logout(ctx, refreshToken); err != nil {
		s.logger.Debug().Err(err).Msg("server-side revocation failed")
	}
}

// clearGeneration clears only if no login replaced the credentials since
// generation was read.
func (s *Session) clearGeneration(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return
	}
	s.clearLocked()
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.identity = nil
	s.accessToken = nil
	s.refreshToken = nil
	s.generation++
	s.store.Clear()
	s.logger.Info().Msg("session cleared")
}

func (s *Session) replaceCredentials(pair *identity.TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	s.accessToken = utils.Ptr(pair.AccessToken)
	s.refreshToken = utils.Ptr(pair.RefreshToken)
	s.generation++
	s.store.Save(token.Access, pair.AccessToken)
	s.store.Save(token.Refresh, pair.RefreshToken)
}

func (s *Session) beginAuthenticating() {
	s.mu.Lock()
	s.authenticating++
	s.mu.Unlock()
}

func (s *Session) endAuthenticating() {
	s.mu.Lock()
	s.authenticating--
	s.mu.Unlock()
}

// AccessToken returns the current access credential, if any.
func (s *Session) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return utils.Value(s.accessToken), s.accessToken != nil
}

// RefreshToken returns the current refresh credential, if any.
func (s *Session) RefreshToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return utils.Value(s.refreshToken), s.refreshToken != nil
}

// Identity returns a copy of the signed-in profile, or nil.
func (s *Session) Identity() *users.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.Clone()
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.authenticating > 0 {
		return StatusAuthenticating
	}
	return StatusIdle
}

// Authenticated reports whether an access credential is held. The identity
// may still be absent (profile not loaded yet, or its load failed).
func (s *Session) Authenticated() bool {
	_, ok := s.AccessToken()
	return ok
}

// AccessExpiry reads the expiry of a JWT-shaped access credential.
func (s *Session) AccessExpiry() (time.Time, bool) {
	access, ok := s.AccessToken()
	if !ok {
		return time.Time{}, false
	}
	claims, ok := token.Peek(access)
	if !ok || claims.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return claims.ExpiresAt, true
}

// AccessExpired is true only when the access credential carries an expiry in the past.
func (s *Session) AccessExpired() bool {
	expiry, ok := s.AccessExpiry()
	return ok && !s.nowTime().Before(expiry)
}

func (s *Session) HasRole(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.HasRole(role)
}

func (s *Session) HasAnyRole(roles []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.HasAnyRole(roles)
}

func (s *Session) HasPermission(permission string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.HasPermission(permission)
}

func (s *Session) IsAdmin() bool {
	return s.HasRole(users.RoleAdmin)
}
