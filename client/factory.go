package client

import (
	"net/http"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/provider"
)

// Factory builds the three kinds of client from one validated Config. All
// clients of a factory share its refresh coordination.
type Factory struct {
	cfg           Config
	provider      provider.Provider
	adminProvider provider.Provider
	verifier      provider.TokenVerifier
	httpClient    *http.Client
	nowFunc       func() time.Time
	refresher     *refresher

	browserOnce sync.Once
	browser     *Client
}

type FactoryOption func(*Factory)

// WithProvider replaces the GoTrue provider built from the config.
func WithProvider(p provider.Provider) FactoryOption {
	return func(f *Factory) {
		f.provider = p
	}
}

// WithAdminProvider replaces the provider used by Admin clients.
func WithAdminProvider(p provider.Provider) FactoryOption {
	return func(f *Factory) {
		f.adminProvider = p
	}
}

// WithVerifier sets how server clients verify access tokens read from
// cookies. The default asks the provider on every request.
func WithVerifier(v provider.TokenVerifier) FactoryOption {
	return func(f *Factory) {
		f.verifier = v
	}
}

func WithHTTPClient(c *http.Client) FactoryOption {
	return func(f *Factory) {
		f.httpClient = c
	}
}

func WithNowFunc(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.nowFunc = now
	}
}

// NewFactory validates cfg before anything else is built, so a bad config
// never results in a provider or a network call.
func NewFactory(cfg Config, opts ...FactoryOption) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &Factory{cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(f)
	}
	if f.nowFunc == nil {
		f.nowFunc = time.Now
	}

	gotrueOpts := []provider.Option{provider.WithNowFunc(f.nowFunc)}
	if f.httpClient != nil {
		gotrueOpts = append(gotrueOpts, provider.WithHTTPClient(f.httpClient))
	}
	if f.provider == nil {
		f.provider = provider.NewGoTrue(f.cfg.URL, f.cfg.AnonKey, gotrueOpts...)
	}
	if f.adminProvider == nil && f.cfg.ServiceRoleKey != "" {
		f.adminProvider = provider.NewGoTrue(f.cfg.URL, f.cfg.ServiceRoleKey, gotrueOpts...)
	}
	if f.verifier == nil {
		f.verifier = provider.NewRemoteVerifier(f.provider)
	}
	f.refresher = newRefresher(f.cfg.ReuseInterval, f.nowFunc)
	return f, nil
}

func (f *Factory) Config() Config {
	return f.cfg
}

// Browser returns the process wide browser client. The first call creates it
// with storage; later calls return that same client whatever they pass.
func (f *Factory) Browser(storage Storage) (*Client, error) {
	if storage == nil {
		return nil, &apperrors.ContextError{Kind: string(KindBrowser), Reason: "requires session storage"}
	}
	f.browserOnce.Do(func() {
		f.browser = f.newClient(KindBrowser, f.provider, storage)
	})
	return f.browser, nil
}

// Server returns a new client bound to one request's cookies.
func (f *Factory) Server(jar CookieJar) (*Client, error) {
	if jar == nil {
		return nil, &apperrors.ContextError{Kind: string(KindServer), Reason: "requires a request cookie jar"}
	}
	return f.newClient(KindServer, f.provider, NewCookieStorage(jar, f.cfg.Cookies)), nil
}

// Admin is a server client authenticated with the service role key.
func (f *Factory) Admin(jar CookieJar) (*Client, error) {
	if f.adminProvider == nil {
		return nil, &apperrors.ConfigurationError{Setting: "SUPABASE_SERVICE_ROLE_KEY", Reason: "is required for the admin client"}
	}
	if jar == nil {
		return nil, &apperrors.ContextError{Kind: string(KindAdmin), Reason: "requires a request cookie jar"}
	}
	return f.newClient(KindAdmin, f.adminProvider, NewCookieStorage(jar, f.cfg.Cookies)), nil
}

func (f *Factory) newClient(kind Kind, p provider.Provider, storage Storage) *Client {
	return &Client{
		kind:          kind,
		provider:      p,
		verifier:      f.verifier,
		storage:       storage,
		refresher:     f.refresher,
		refreshWindow: f.cfg.RefreshWindow,
		cookies:       f.cfg.Cookies,
		listeners:     &listenerSet{},
		nowFunc:       f.nowFunc,
	}
}
