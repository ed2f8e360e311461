package guard

import (
	"fmt"
	"io"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Route is a navigable destination and the roles it demands.
type Route struct {
	Name            string   `yaml:"name"`
	Path            string   `yaml:"path"`
	Public          bool     `yaml:"public,omitempty"`          // reachable without a session
	RequiresRole    string   `yaml:"requiresRole,omitempty"`    // single role that must be held
	RequiresAnyRole []string `yaml:"requiresAnyRole,omitempty"` // at least one must be held
}

// DefaultRoutes is the admin console's navigation table.
func DefaultRoutes() []Route {
	return []Route{
		{Name: "login", Path: "/login", Public: true},
		{Name: "register", Path: "/register", Public: true},
		{Name: "forgot-password", Path: "/forgot-password", Public: true},
		{Name: "reset-password", Path: "/reset-password", Public: true},

		{Name: "dashboard-home", Path: "/dashboard"},
		{Name: "users", Path: "/dashboard/users", RequiresRole: "admin"},
		{Name: "roles", Path: "/dashboard/roles", RequiresRole: "admin"},
		{Name: "permissions", Path: "/dashboard/permissions", RequiresRole: "admin"},
		{Name: "requests", Path: "/dashboard/requests"},
		{Name: "manage-requests", Path: "/dashboard/manage-requests", RequiresAnyRole: []string{"admin", "supervisor"}},
		{Name: "deleted-requests", Path: "/dashboard/deleted-requests"},
	}
}

type routeFile struct {
	Routes []Route `yaml:"routes"`
}

// LoadRoutes reads a YAML route table of the form
//
//	routes:
//	  - name: users
//	    path: /dashboard/users
//	    requiresRole: admin
func LoadRoutes(r io.Reader) ([]Route, error) {
	var file routeFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding route table: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Routes))
	for i, route := range file.Routes {
		if !strings.HasPrefix(route.Path, "/") {
			return nil, fmt.Errorf("route %d (%q): path must start with /", i, route.Name)
		}
		if _, dup := seen[route.Path]; dup {
			return nil, fmt.Errorf("route %d (%q): duplicate path %s", i, route.Name, route.Path)
		}
		seen[route.Path] = struct{}{}
	}
	return file.Routes, nil
}

// Router resolves paths to routes and guards the non-public ones.
type Router struct {
	guard  *Guard
	routes map[string]Route
	order  []string
	logger zerolog.Logger
}

// RouterOption defines a function type to modify the Router instance.
type RouterOption func(*Router)

// WithLogger overrides the global zerolog logger.
func WithLogger(logger zerolog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func NewRouter(g *Guard, routes []Route, options ...RouterOption) *Router {
	r := &Router{
		guard:  g,
		routes: make(map[string]Route, len(routes)),
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	for _, route := range routes {
		path := normalize(route.Path)
		if _, ok := r.routes[path]; !ok {
			r.order = append(r.order, path)
		}
		r.routes[path] = route
	}
	return r
}

// Resolve finds the route registered for path, or failing that the route
// with the longest registered path that path lies under, so sub-pages inherit
// their parent's requirements. "/" only matches exactly.
func (r *Router) Resolve(path string) (Route, bool) {
	path = normalize(path)
	if route, ok := r.routes[path]; ok {
		return route, true
	}
	for {
		i := strings.LastIndex(path, "/")
		if i <= 0 {
			return Route{}, false
		}
		path = path[:i]
		if route, ok := r.routes[path]; ok {
			return route, true
		}
	}
}

// Navigate resolves path and evaluates the guard for it. Public routes are
// always allowed.
func (r *Router) Navigate(path string) (Result, error) {
	route, ok := r.Resolve(path)
	if !ok {
		return Result{}, apperrors.Wrapf(apperrors.ErrRouteNotFound, "navigate %s", path)
	}
	if route.Public {
		return Result{Decision: Allowed}, nil
	}
	return r.guard.Check(route), nil
}

// Routes returns the table in registration order.
func (r *Router) Routes() []Route {
	out := make([]Route, 0, len(r.order))
	for _, path := range r.order {
		out = append(out, r.routes[path])
	}
	return out
}

func normalize(path string) string {
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}
