package client

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-gate/sessions"
)

// Storage persists the session between calls. Load returns nil, nil when
// nothing is stored. A loaded session may lack its user or expiry; the
// client fills those in.
type Storage interface {
	Load(ctx context.Context) (*sessions.Session, error)
	Save(ctx context.Context, s *sessions.Session) error
	Clear(ctx context.Context) error
}

// MemoryStorage keeps the session in process memory, for the browser client.
type MemoryStorage struct {
	session *sessions.Session
	lock    sync.RWMutex
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load(_ context.Context) (*sessions.Session, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.session == nil {
		return nil, nil
	}
	cp := *m.session
	return &cp, nil
}

func (m *MemoryStorage) Save(_ context.Context, s *sessions.Session) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	cp := *s
	m.session = &cp
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.session = nil
	return nil
}

// CookieStorage keeps the token pair in the Cookie Pair of a jar. The user is
// not stored; it comes from verifying the access token.
type CookieStorage struct {
	jar  CookieJar
	opts sessions.CookieOptions
}

var _ Storage = (*CookieStorage)(nil)

func NewCookieStorage(jar CookieJar, opts sessions.CookieOptions) *CookieStorage {
	return &CookieStorage{jar: jar, opts: opts}
}

func (c *CookieStorage) Load(_ context.Context) (*sessions.Session, error) {
	access, _ := c.jar.Get(c.opts.Names.Access)
	refresh, _ := c.jar.Get(c.opts.Names.Refresh)
	if access == "" && refresh == "" {
		return nil, nil
	}

	s := &sessions.Session{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}
	if access != "" {
		// An unreadable token keeps a zero expiry and gets refreshed.
		if exp, err := sessions.AccessTokenExpiry(access); err == nil {
			s.ExpiresAt = exp
		}
	}
	return s, nil
}

func (c *CookieStorage) Save(_ context.Context, s *sessions.Session) error {
	for _, cookie := range c.opts.PairCookies(s) {
		c.jar.Set(cookie)
	}
	return nil
}

func (c *CookieStorage) Clear(_ context.Context) error {
	c.jar.Remove(c.opts.Names.Access, c.opts)
	c.jar.Remove(c.opts.Names.Refresh, c.opts)
	return nil
}
