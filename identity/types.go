package identity

import (
	"strings"

	"golang.org/x/oauth2"
)

// LoginRequest is the exchange-credentials payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the create-account payload.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries the refresh credential to the renew and revoke calls.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// TokenPair is what the identity service hands back from an exchange.
// RefreshToken is empty when the renew call did not rotate it.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// OAuth2 converts the pair for use with golang.org/x/oauth2 helpers.
func (p TokenPair) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
	}
}

// envelope is the {success, data} wrapper every identity response uses.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// Endpoints are the identity paths, relative to the API base URL.
type Endpoints struct {
	Login    string
	Register string
	Refresh  string
	Logout   string
	Forgot   string
	Reset    string
	Profile  string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:    "/auth/login",
		Register: "/auth/register",
		Refresh:  "/auth/refresh",
		Logout:   "/auth/logout",
		Forgot:   "/auth/forgot",
		Reset:    "/auth/reset",
		Profile:  "/users/me",
	}
}

// Exchange lists the paths that trade credentials rather than use them.
// An authorization rejection on one of these must never trigger a renewal.
func (e Endpoints) Exchange() []string {
	return []string{e.Login, e.Register, e.Refresh, e.Logout, e.Forgot, e.Reset}
}

// IsExchange reports whether a request path targets an exchange endpoint.
func (e Endpoints) IsExchange(path string) bool {
	for _, p := range e.Exchange() {
		if p != "" && strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}
