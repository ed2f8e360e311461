package identityfake

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/users"
)

var _ sessions.IdentityProvider = (*FakeProvider)(nil)

// Counts records how often each identity call was made.
type Counts struct {
	Login    int
	Register int
	Refresh  int
	Logout   int
	Profile  int
}

// FakeProvider is an in-memory identity service for tests.
type FakeProvider struct {
	lock sync.Mutex

	passwords    map[string]string // email to password
	validRefresh map[string]bool
	issued       int
	rotate       bool

	profile    *users.Profile
	profileErr error
	refreshErr error
	logoutErr  error

	refreshGate    chan struct{}
	refreshStarted chan struct{}

	counts Counts
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		passwords:    make(map[string]string),
		validRefresh: make(map[string]bool),
	}
}

func (f *FakeProvider) AddAccount(email, password string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.passwords[email] = password
}

func (f *FakeProvider) SetProfile(profile *users.Profile) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.profile = profile
	f.profileErr = nil
}

func (f *FakeProvider) FailProfile(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.profileErr = err
}

// FailRefresh makes every renew call fail with err.
func (f *FakeProvider) FailRefresh(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.refreshErr = err
}

func (f *FakeProvider) FailLogout(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.logoutErr = err
}

// RotateRefresh makes renew calls also hand out a new refresh credential.
func (f *FakeProvider) RotateRefresh() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.rotate = true
}

// Grant marks refreshToken as valid without a login.
func (f *FakeProvider) Grant(refreshToken string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.validRefresh[refreshToken] = true
}

// Revoke invalidates a refresh credential server side.
func (f *FakeProvider) Revoke(refreshToken string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.validRefresh, refreshToken)
}

// BlockRefresh holds every renew call until release is called. started
// receives once per renew call that reaches the fake.
func (f *FakeProvider) BlockRefresh() (started <-chan struct{}, release func()) {
	f.lock.Lock()
	defer f.lock.Unlock()
	gate := make(chan struct{})
	f.refreshGate = gate
	f.refreshStarted = make(chan struct{}, 64)
	var once sync.Once
	return f.refreshStarted, func() { once.Do(func() { close(gate) }) }
}

func (f *FakeProvider) Calls() Counts {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.counts
}

func (f *FakeProvider) Login(_ context.Context, req identity.LoginRequest) (*identity.TokenPair, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.counts.Login++

	if password, ok := f.passwords[req.Email]; !ok || password != req.Password {
		return nil, apperrors.ErrInvalidCredentials
	}
	return f.issuePairLocked(req.Email), nil
}

func (f *FakeProvider) Register(_ context.Context, req identity.RegisterRequest) (*identity.TokenPair, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.counts.Register++

	if req.Email == "" || req.Password == "" {
		return nil, apperrors.ErrValidation
	}
	if _, exists := f.passwords[req.Email]; exists {
		return nil, apperrors.ErrConflict
	}
	f.passwords[req.Email] = req.Password
	return f.issuePairLocked(req.Email), nil
}

func (f *FakeProvider) Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	f.lock.Lock()
	f.counts.Refresh++
	gate, started := f.refreshGate, f.refreshStarted
	f.lock.Unlock()

	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if !f.validRefresh[refreshToken] {
		return nil, apperrors.ErrRefreshInvalid
	}

	f.issued++
	pair := &identity.TokenPair{AccessToken: fmt.Sprintf("access-%d", f.issued)}
	if f.rotate {
		delete(f.validRefresh, refreshToken)
		pair.RefreshToken = fmt.Sprintf("refresh-%d", f.issued)
		f.validRefresh[pair.RefreshToken] = true
	}
	return pair, nil
}

func (f *FakeProvider) Logout(_ context.Context, refreshToken string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.counts.Logout++

	if f.logoutErr != nil {
		return f.logoutErr
	}
	delete(f.validRefresh, refreshToken)
	return nil
}

func (f *FakeProvider) FetchProfile(context.Context) (*users.Profile, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.counts.Profile++

	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if f.profile == nil {
		return nil, apperrors.ErrProfileUnavailable
	}
	return f.profile.Clone(), nil
}

func (f *FakeProvider) issuePairLocked(email string) *identity.TokenPair {
	f.issued++
	pair := &identity.TokenPair{
		AccessToken:  fmt.Sprintf("access-%d", f.issued),
		RefreshToken: fmt.Sprintf("refresh-%s-%d", email, f.issued),
	}
	f.validRefresh[pair.RefreshToken] = true
	return pair
}
