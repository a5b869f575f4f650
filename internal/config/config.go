package config

type Config interface {
	EnvConfig
	ProviderConfig
	CorsConfig
	SessionConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetSiteURL() string
	IsProduction() bool
}

type CorsConfig interface {
	GetAllowedOrigin() string
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Provider
	Cors
	Session
	Store
}

func New() Config {
	return mainConfig{}
}
