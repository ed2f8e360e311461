package config

type NavigationConfig interface {
	GetLoginPath() string
	GetLandingPath() string
	GetRoutesFile() string
}

type Navigation struct{}

var _ NavigationConfig = Navigation{}

// GetLoginPath is where a navigation without a session is sent.
func (Navigation) GetLoginPath() string {
	return GetEnv("LOGIN_PATH", "/login")
}

// GetLandingPath is where a navigation lacking the required role is sent.
func (Navigation) GetLandingPath() string {
	return GetEnv("LANDING_PATH", "/dashboard")
}

// GetRoutesFile returns an optional YAML route table; empty means built-in routes.
func (Navigation) GetRoutesFile() string {
	return GetEnv("ROUTES_FILE", "")
}
