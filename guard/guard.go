// Package guard decides, before a navigation, whether the current session
// may reach a destination. The decision is a pure function of the session
// and the route metadata; it never blocks and never fails.
package guard

// Decision is the outcome of a navigation check.
type Decision int

const (
	Allowed Decision = iota
	RedirectNoSession
	RedirectForbidden
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case RedirectNoSession:
		return "redirect-no-session"
	case RedirectForbidden:
		return "redirect-forbidden"
	}
	return "unknown"
}

// Principal is the view of the session the guard needs.
type Principal interface {
	AccessToken() (string, bool)
	HasRole(role string) bool
	HasAnyRole(roles []string) bool
}

// Result carries the decision and, for redirects, where to go instead.
type Result struct {
	Decision Decision
	Target   string
}

func (r Result) Allowed() bool {
	return r.Decision == Allowed
}

// Guard evaluates routes against one session.
type Guard struct {
	principal   Principal
	loginPath   string
	landingPath string
}

// Option defines a function type to modify the Guard instance.
type Option func(*Guard)

// WithLoginPath sets the redirect target used when there is no session.
func WithLoginPath(path string) Option {
	return func(g *Guard) {
		g.loginPath = path
	}
}

// WithLandingPath sets the redirect target used when a role is missing.
func WithLandingPath(path string) Option {
	return func(g *Guard) {
		g.landingPath = path
	}
}

func New(principal Principal, options ...Option) *Guard {
	g := &Guard{
		principal:   principal,
		loginPath:   "/login",
		landingPath: "/dashboard",
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Check applies the session check, then the single required role, then the
// any-of role set. A session whose profile has not loaded holds no roles.
func (g *Guard) Check(route Route) Result {
	if g.principal == nil {
		return Result{Decision: RedirectNoSession, Target: g.loginPath}
	}
	if _, ok := g.principal.AccessToken(); !ok {
		return Result{Decision: RedirectNoSession, Target: g.loginPath}
	}

	if route.RequiresRole != "" && !g.principal.HasRole(route.RequiresRole) {
		return Result{Decision: RedirectForbidden, Target: g.landingPath}
	}
	if len(route.RequiresAnyRole) > 0 && !g.principal.HasAnyRole(route.RequiresAnyRole) {
		return Result{Decision: RedirectForbidden, Target: g.landingPath}
	}
	return Result{Decision: Allowed}
}
