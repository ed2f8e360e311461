package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Client talks to the identity service. It is usually built on the
// transport pipeline's *http.Client so the profile fetch carries the bearer
// credential and benefits from silent renewal.
type Client struct {
	baseURL    string
	httpClient *http.Client
	endpoints  Endpoints
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithEndpoints replaces the default identity paths.
func WithEndpoints(endpoints Endpoints) ClientOption {
	return func(c *Client) {
		c.endpoints = endpoints
	}
}

// NewClient builds a Client for the API rooted at baseURL.
// A nil httpClient falls back to http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[NewClient] baseURL is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		endpoints:  DefaultEndpoints(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Endpoints returns the identity paths in use.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// Login exchanges an identifier and secret for a token pair.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	var out envelope[TokenPair]
	if err := c.do(ctx, http.MethodPost, c.endpoints.Login, req, &out); err != nil {
		return nil, classify(err, loginStatus)
	}
	if out.Data.AccessToken == "" || out.Data.RefreshToken == "" {
		return nil, apperrors.Wrapf(apperrors.ErrTransport, "login response is missing credentials")
	}
	return &out.Data, nil
}

// Register creates an account and returns its first token pair.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*TokenPair, error) {
	var out envelope[TokenPair]
	if err := c.do(ctx, http.MethodPost, c.endpoints.Register, req, &out); err != nil {
		return nil, classify(err, registerStatus)
	}
	if out.Data.AccessToken == "" || out.Data.RefreshToken == "" {
		return nil, apperrors.Wrapf(apperrors.ErrTransport, "register response is missing credentials")
	}
	return &out.Data, nil
}

// Refresh trades the refresh credential for a new access credential.
// The returned pair carries a refresh credential only when the service rotated it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var out envelope[TokenPair]
	if err := c.do(ctx, http.MethodPost, c.endpoints.Refresh, RefreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return nil, classify(err, refreshStatus)
	}
	if out.Data.AccessToken == "" {
		return nil, apperrors.Wrapf(apperrors.ErrTransport, "refresh response is missing accessToken")
	}
	return &out.Data, nil
}

// Logout revokes the refresh credential server side.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	if err := c.do(ctx, http.MethodPost, c.endpoints.Logout, RefreshRequest{RefreshToken: refreshToken}, nil); err != nil {
		return classify(err, nil)
	}
	return nil
}

// FetchProfile loads the signed-in user's identity, roles and permissions.
func (c *Client) FetchProfile(ctx context.Context) (*users.Profile, error) {
	var out envelope[*users.Profile]
	if err := c.do(ctx, http.MethodGet, c.endpoints.Profile, nil, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrProfileUnavailable, err)
	}
	if out.Data == nil || out.Data.ID == "" {
		return nil, apperrors.Wrapf(apperrors.ErrProfileUnavailable, "profile response is empty")
	}
	return out.Data.Normalize(), nil
}

// ForgotPassword asks the service to send a reset link to email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	if err := c.do(ctx, http.MethodPost, c.endpoints.Forgot, forgotRequest{Email: email}, nil); err != nil {
		return classify(err, forgotStatus)
	}
	return nil
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, resetToken, password string) error {
	if err := c.do(ctx, http.MethodPost, c.endpoints.Reset, resetRequest{Token: resetToken, Password: password}, nil); err != nil {
		return classify(err, resetStatus)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
