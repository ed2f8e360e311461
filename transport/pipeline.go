// Package transport wraps an http.RoundTripper with the session's
// authorization handling: a request stage that attaches the bearer
// credential, and a response stage that renews an expired credential and
// replays the rejected request exactly once.
package transport

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxDrain = 64 << 10

// CredentialSource supplies the access credential for the bearer stage.
type CredentialSource interface {
	AccessToken() (string, bool)
}

// Authority is the session the pipeline reads credentials from and asks to
// renew. Refresh must collapse concurrent calls into one exchange, and on
// failure must end the session that owned the rejected credential before it
// returns.
type Authority interface {
	CredentialSource
	RefreshToken() (string, bool)
	Refresh(ctx context.Context) error
}

// TerminationHandler is told when a failed renewal has ended the session, so
// the presentation layer can send the user back to the entry screen.
type TerminationHandler func(err error)

// Pipeline is an http.RoundTripper. It is safe for concurrent use.
type Pipeline struct {
	base         http.RoundTripper
	stages       []Stage
	isExchange   func(path string) bool
	onTerminated TerminationHandler
	logger       zerolog.Logger

	mu        sync.RWMutex
	authority Authority
}

var _ http.RoundTripper = (*Pipeline)(nil)

// Option defines a function type to modify the Pipeline instance.
type Option func(*Pipeline)

// WithStages appends request stages after the bearer and request-id stages.
func WithStages(stages ...Stage) Option {
	return func(p *Pipeline) {
		p.stages = append(p.stages, stages...)
	}
}

// WithExchangeMatcher decides which request paths are credential exchanges.
// Defaults to the identity service's default endpoints.
func WithExchangeMatcher(match func(path string) bool) Option {
	return func(p *Pipeline) {
		p.isExchange = match
	}
}

func WithTerminationHandler(handler TerminationHandler) Option {
	return func(p *Pipeline) {
		p.onTerminated = handler
	}
}

// WithLogger overrides the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New wraps base (http.DefaultTransport when nil). Requests pass through
// without authorization until Attach is called.
func New(base http.RoundTripper, options ...Option) *Pipeline {
	if base == nil {
		base = http.DefaultTransport
	}
	p := &Pipeline{
		base:       base,
		isExchange: identity.DefaultEndpoints().IsExchange,
		logger:     log.Logger,
	}
	p.stages = []Stage{Bearer(p), RequestID()}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Attach binds the session. The pipeline and the identity client that the
// session uses are built first, so the binding happens afterwards.
func (p *Pipeline) Attach(authority Authority) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authority = authority
}

func (p *Pipeline) currentAuthority() Authority {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.authority
}

// AccessToken lets the pipeline act as the bearer stage's CredentialSource.
func (p *Pipeline) AccessToken() (string, bool) {
	authority := p.currentAuthority()
	if authority == nil {
		return "", false
	}
	return authority.AccessToken()
}

// Client returns an *http.Client that sends through the pipeline.
func (p *Pipeline) Client() *http.Client {
	return &http.Client{Transport: p}
}

func (p *Pipeline) RoundTrip(req *http.Request) (*http.Response, error) {
	env, err := NewEnvelope(req)
	if err != nil {
		return nil, err
	}
	return p.Send(req.Context(), env)
}

// Send runs the request stages, sends the envelope and applies the response stage.
func (p *Pipeline) Send(ctx context.Context, env Envelope) (*http.Response, error) {
	for _, stage := range p.stages {
		env = stage(env)
	}

	req, err := env.Request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := p.base.RoundTrip(req)
	if err != nil {
		// transport failures are never retried or wrapped
		return nil, err
	}
	return p.receive(ctx, env, resp)
}

func (p *Pipeline) receive(ctx context.Context, env Envelope, resp *http.Response) (*http.Response, error) {
	authority := p.currentAuthority()
	if !p.shouldRenew(authority, env, resp) {
		return resp, nil
	}

	replay := env.WithRetried()
	logger := p.logger.With().
		Str("method", env.Method()).
		Str("path", env.URL().Path).
		Str("request_id", env.header.Get(RequestIDHeader)).
		Logger()

	if current, ok := authority.AccessToken(); ok && current != env.Credential() {
		logger.Debug().Msg("credential renewed since send, replaying")
		discard(resp)
		return p.Send(ctx, replay)
	}

	// Refresh has already logged out the session that owned the failed credential.
	if err := authority.Refresh(ctx); err != nil {
		if current, ok := authority.AccessToken(); ok && current != env.Credential() {
			logger.Debug().Msg("session replaced during failed renewal, replaying")
			discard(resp)
			return p.Send(ctx, replay)
		}
		logger.Warn().Err(err).Msg("renewal failed, session terminated")
		p.terminate(err)
		return resp, nil
	}

	logger.Debug().Msg("credential renewed, replaying")
	discard(resp)
	return p.Send(ctx, replay)
}

// shouldRenew: an authorization rejection, a refresh credential to renew
// with, a request that has not been replayed yet, and not an exchange call.
func (p *Pipeline) shouldRenew(authority Authority, env Envelope, resp *http.Response) bool {
	if resp.StatusCode != http.StatusUnauthorized || authority == nil {
		return false
	}
	if env.Retried() || p.isExchange(env.URL().Path) {
		return false
	}
	_, ok := authority.RefreshToken()
	return ok
}

func (p *Pipeline) terminate(err error) {
	if p.onTerminated != nil {
		p.onTerminated(err)
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	resp.Body.Close()
}
