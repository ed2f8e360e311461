// Package console assembles the session layer of the admin console: the
// credential store, the authorizing HTTP pipeline, the identity client, the
// session and the access guard, wired together from config.
package console

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/jrsteele09/go-auth-client/guard"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/token/filestore"
	"github.com/jrsteele09/go-auth-client/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const terminationBuffer = 8

type Console struct {
	config       config.Config
	logger       zerolog.Logger
	store        token.Store
	base         http.RoundTripper
	pipeline     *transport.Pipeline
	identity     *identity.Client
	session      *sessions.Session
	router       *guard.Router
	terminations chan error
}

// Option defines a function type to modify the Console instance.
type Option func(*Console)

// WithLogger overrides the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Console) {
		c.logger = logger
	}
}

// WithStore replaces the file backed credential store.
func WithStore(store token.Store) Option {
	return func(c *Console) {
		c.store = store
	}
}

// WithBaseTransport sets the round tripper requests finally go out on.
func WithBaseTransport(base http.RoundTripper) Option {
	return func(c *Console) {
		c.base = base
	}
}

func New(cfg config.Config, options ...Option) (*Console, error) {
	c := &Console{
		config:       cfg,
		logger:       log.Logger,
		terminations: make(chan error, terminationBuffer),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.store == nil {
		key, err := cfg.GetTokenSealKey()
		if err != nil {
			return nil, fmt.Errorf("[console.New] seal key: %w", err)
		}
		c.store = filestore.New(cfg.GetTokenFile(), filestore.WithSealKey(key), filestore.WithLogger(c.logger))
	}

	c.pipeline = transport.New(c.base,
		transport.WithLogger(c.logger),
		transport.WithTerminationHandler(c.terminated),
	)

	var err error
	c.identity, err = identity.NewClient(cfg.GetAPIURL(), c.pipeline.Client())
	if err != nil {
		return nil, fmt.Errorf("[console.New] failed to create identity client: %w", err)
	}
	c.session, err = sessions.New(c.store, c.identity, sessions.WithLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("[console.New] failed to create session: %w", err)
	}
	c.pipeline.Attach(c.session)

	routes, err := loadRoutes(cfg.GetRoutesFile())
	if err != nil {
		return nil, fmt.Errorf("[console.New] %w", err)
	}
	g := guard.New(c.session, guard.WithLoginPath(cfg.GetLoginPath()), guard.WithLandingPath(cfg.GetLandingPath()))
	c.router = guard.NewRouter(g, routes, guard.WithLogger(c.logger))

	c.logger.Debug().
		Str("api_url", cfg.GetAPIURL()).
		Bool("hydrated", c.session.Authenticated()).
		Int("routes", len(routes)).
		Msg("console initialised")
	return c, nil
}

func loadRoutes(path string) ([]guard.Route, error) {
	if path == "" {
		return guard.DefaultRoutes(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open route table: %w", err)
	}
	defer f.Close()
	return guard.LoadRoutes(f)
}

// Start loads the profile for a session hydrated from the store. It is a
// no-op when no access credential was persisted.
func (c *Console) Start(ctx context.Context) {
	if !c.session.Authenticated() {
		return
	}
	c.session.LoadProfile(ctx)
}

// terminated must not block the request that triggered it.
func (c *Console) terminated(err error) {
	select {
	case c.terminations <- err:
	default:
		c.logger.Debug().Err(err).Msg("termination dropped, channel full")
	}
}

// Terminations delivers the error of every renewal failure that ended the session.
func (c *Console) Terminations() <-chan error {
	return c.terminations
}

// Get issues an authorized GET against a path relative to the API URL.
func (c *Console) Get(ctx context.Context, path string) (*http.Response, error) {
	url := c.config.GetAPIURL() + "/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.HTTPClient().Do(req)
}

// HTTPClient sends through the authorizing pipeline.
func (c *Console) HTTPClient() *http.Client {
	return c.pipeline.Client()
}

func (c *Console) Session() *sessions.Session {
	return c.session
}

func (c *Console) Identity() *identity.Client {
	return c.identity
}

func (c *Console) Router() *guard.Router {
	return c.router
}

func (c *Console) Store() token.Store {
	return c.store
}
