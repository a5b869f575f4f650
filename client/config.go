package client

import (
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-gate/internal/config"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/sessions"
)

const (
	// DefaultRefreshWindow is how long before expiry a session is renewed.
	DefaultRefreshWindow = 60 * time.Second

	// DefaultReuseInterval is how long a consumed refresh token keeps
	// resolving to the pair it was exchanged for. Requests that raced the
	// rotation still present the old token.
	DefaultReuseInterval = 10 * time.Second
)

// Config is what every client needs to reach the identity provider.
type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string // Only required by Factory.Admin
	RefreshWindow  time.Duration
	ReuseInterval  time.Duration
	Cookies        sessions.CookieOptions
}

// ConfigFrom maps the environment configuration onto a client Config.
func ConfigFrom(cfg config.Config) Config {
	cookies := sessions.DefaultCookieOptions()
	cookies.Names = sessions.NewCookieNames(cfg.GetCookiePrefix())
	cookies.Secure = cfg.IsProduction()
	cookies.RefreshMaxAge = cfg.GetRefreshCookieMaxAge()

	return Config{
		URL:            cfg.GetProviderURL(),
		AnonKey:        cfg.GetAnonKey(),
		ServiceRoleKey: cfg.GetServiceRoleKey(),
		RefreshWindow:  cfg.GetRefreshWindow(),
		Cookies:        cookies,
	}
}

// Validate rejects a config no client could work with. It never touches the
// network.
func (c Config) Validate() error {
	raw := strings.TrimSpace(c.URL)
	if raw == "" {
		return &apperrors.ConfigurationError{Setting: "SUPABASE_URL", Reason: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &apperrors.ConfigurationError{Setting: "SUPABASE_URL", Reason: "must be an absolute http(s) URL"}
	}
	if strings.TrimSpace(c.AnonKey) == "" {
		return &apperrors.ConfigurationError{Setting: "SUPABASE_ANON_KEY", Reason: "is required"}
	}
	if c.RefreshWindow < 0 {
		return &apperrors.ConfigurationError{Setting: "AUTH_REFRESH_WINDOW", Reason: "must not be negative"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	c.AnonKey = strings.TrimSpace(c.AnonKey)
	c.ServiceRoleKey = strings.TrimSpace(c.ServiceRoleKey)
	if c.RefreshWindow == 0 {
		c.RefreshWindow = DefaultRefreshWindow
	}
	if c.ReuseInterval == 0 {
		c.ReuseInterval = DefaultReuseInterval
	}
	if c.Cookies.Names.Access == "" || c.Cookies.Names.Refresh == "" {
		secure := c.Cookies.Secure
		c.Cookies = sessions.DefaultCookieOptions()
		c.Cookies.Secure = secure
	}
	return c
}
