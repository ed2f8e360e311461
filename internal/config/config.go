package config

type Config interface {
	EnvConfig
	StoreConfig
	NavigationConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetAPIURL() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	Store
	Navigation
}

func New() Config {
	return mainConfig{}
}
