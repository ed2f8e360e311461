package config

import (
	"os"
	"strings"
)

const (
	appNameVar  = "APP_NAME"
	apiURLVar   = "API_URL"
	logLevelVar = "LOG_LEVEL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Admin Console")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetAPIURL returns the base URL shared by the identity endpoints and the
// admin resources (e.g., "https://console.example.com/api").
func (EnvVars) GetAPIURL() string {
	return strings.TrimRight(GetEnv(apiURLVar, "http://localhost:3000/api"), "/")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
