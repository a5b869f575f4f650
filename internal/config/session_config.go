package config

import "time"

type SessionConfig interface {
	GetCookiePrefix() string
	GetRefreshWindow() time.Duration
	GetRefreshCookieMaxAge() time.Duration
	GetPostLoginRedirect() string
	GetSignInPath() string
	GetFlowTTL() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetCookiePrefix() string {
	return GetEnv("AUTH_COOKIE_PREFIX", "sb")
}

// GetRefreshWindow is how long before access token expiry the gate renews the pair.
func (Session) GetRefreshWindow() time.Duration {
	return GetEnvDuration("AUTH_REFRESH_WINDOW", 60*time.Second)
}

func (Session) GetRefreshCookieMaxAge() time.Duration {
	return GetEnvDuration("AUTH_REFRESH_COOKIE_MAX_AGE", 7*24*time.Hour)
}

func (Session) GetPostLoginRedirect() string {
	return GetEnv("AUTH_POST_LOGIN_REDIRECT", "/dashboard")
}

func (Session) GetSignInPath() string {
	return GetEnv("AUTH_SIGN_IN_PATH", "/")
}

// GetFlowTTL bounds how long an OAuth PKCE verifier waits for its callback.
func (Session) GetFlowTTL() time.Duration {
	return GetEnvDuration("AUTH_FLOW_TTL", 10*time.Minute)
}
