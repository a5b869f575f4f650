// Package client binds the identity provider to a place where the session
// lives: process memory for the browser client, the request's cookies for
// server clients.
package client

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/provider"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Kind string

const (
	KindBrowser Kind = "browser"
	KindServer  Kind = "server"
	KindAdmin   Kind = "admin"
)

type Client struct {
	kind          Kind
	provider      provider.Provider
	verifier      provider.TokenVerifier
	storage       Storage
	refresher     *refresher
	refreshWindow time.Duration
	cookies       sessions.CookieOptions
	listeners     *listenerSet
	nowFunc       func() time.Time

	verified *sessions.Session // last session whose access token was verified
	lock     sync.Mutex
}

func (c *Client) Kind() Kind {
	return c.kind
}

// CookieOptions are the attributes this client writes session cookies with.
func (c *Client) CookieOptions() sessions.CookieOptions {
	return c.cookies
}

// Session returns the current session, renewing it when the access token is
// missing or within the refresh window of expiry. No session is nil, nil.
//
// A session the provider rejects is removed from storage, SIGNED_OUT is
// emitted and the error matches ErrSessionExpired. Any other failure leaves
// storage as it was.
func (c *Client) Session(ctx context.Context) (*sessions.Session, error) {
	stored, err := c.storage.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[client Session] load")
	}
	if stored == nil {
		return nil, nil
	}
	if stored.RefreshToken == "" {
		return nil, c.expire(ctx, errors.New("refresh token missing"))
	}

	now := c.nowFunc()
	if cached := c.cachedFor(stored.AccessToken); cached != nil && !cached.ExpiresWithin(now, c.refreshWindow) {
		return cached, nil
	}
	if stored.AccessToken == "" || stored.ExpiresAt.IsZero() || stored.ExpiresWithin(now, c.refreshWindow) {
		return c.refresh(ctx, stored)
	}
	if stored.User != nil {
		return stored, nil
	}

	user, err := c.verifier.Verify(ctx, stored.AccessToken)
	if err != nil {
		if provider.IsAuthFailure(err) {
			// The refresh token may still be good, e.g. after a key rotation.
			return c.refresh(ctx, stored)
		}
		return nil, errors.Wrap(err, "[client Session] verify")
	}
	s := stored.WithUser(user)
	c.remember(s)
	return s, nil
}

// User is the user of the current session, or nil.
func (c *Client) User(ctx context.Context) (*users.User, error) {
	s, err := c.Session(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	return s.User, nil
}

// RefreshIfNeeded renews the session if it is close to expiry.
func (c *Client) RefreshIfNeeded(ctx context.Context) error {
	_, err := c.Session(ctx)
	return err
}

func (c *Client) refresh(ctx context.Context, stored *sessions.Session) (*sessions.Session, error) {
	s, err := c.refresher.refresh(ctx, c.provider, stored.RefreshToken)
	if err != nil {
		if provider.IsAuthFailure(err) {
			return nil, c.expire(ctx, err)
		}
		return nil, errors.Wrap(err, "[client refresh]")
	}

	if s.User == nil {
		user, err := c.verifier.Verify(ctx, s.AccessToken)
		if err != nil {
			if provider.IsAuthFailure(err) {
				return nil, c.expire(ctx, err)
			}
			return nil, errors.Wrap(err, "[client refresh] verify")
		}
		s = s.WithUser(user)
	}

	if err := c.storage.Save(ctx, s); err != nil {
		return nil, errors.Wrap(err, "[client refresh] save")
	}
	c.remember(s)
	log.Debug().Str("client", string(c.kind)).Str("user_id", s.User.ID).Msg("session refreshed")
	c.listeners.emit(EventTokenRefreshed, s)
	return s, nil
}

func (c *Client) expire(ctx context.Context, cause error) error {
	if err := c.storage.Clear(ctx); err != nil {
		log.Err(err).Str("client", string(c.kind)).Msg("clearing expired session")
	}
	c.forget()
	log.Debug().Str("client", string(c.kind)).Str("reason", cause.Error()).Msg("session expired")
	c.listeners.emit(EventSignedOut, nil)
	return errors.Wrap(apperrors.ErrSessionExpired, cause.Error())
}

// SetSession stores a session obtained from the provider and emits SIGNED_IN.
func (c *Client) SetSession(ctx context.Context, s *sessions.Session) error {
	return c.setSession(ctx, s, EventSignedIn)
}

func (c *Client) setSession(ctx context.Context, s *sessions.Session, event Event) error {
	if !s.Complete() {
		return errors.Wrap(apperrors.ErrIncompleteCredentials, "[client SetSession]")
	}
	if err := c.storage.Save(ctx, s); err != nil {
		return errors.Wrap(err, "[client SetSession] save")
	}
	c.remember(s)
	c.listeners.emit(event, s)
	return nil
}

// ClearSession removes the stored session and emits SIGNED_OUT.
func (c *Client) ClearSession(ctx context.Context) error {
	if err := c.storage.Clear(ctx); err != nil {
		return errors.Wrap(err, "[client ClearSession]")
	}
	c.forget()
	c.listeners.emit(EventSignedOut, nil)
	return nil
}

// Notify emits event to this client's listeners, for state changes decided
// outside the client such as entering password recovery.
func (c *Client) Notify(event Event, s *sessions.Session) {
	c.listeners.emit(event, s)
}

// OnAuthStateChange registers l and returns its unsubscribe func.
func (c *Client) OnAuthStateChange(l Listener) (unsubscribe func()) {
	return c.listeners.add(l)
}

// StartAutoRefresh keeps a browser session fresh in the background until
// stop is called or ctx ends. Server clients live for one request and get a
// no-op.
func (c *Client) StartAutoRefresh(ctx context.Context, interval time.Duration) (stop func()) {
	if c.kind != KindBrowser {
		log.Warn().Str("client", string(c.kind)).Msg("auto refresh is only available to the browser client")
		return func() {}
	}
	if interval <= 0 {
		interval = c.refreshWindow / 2
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.RefreshIfNeeded(ctx); err != nil && !errors.Is(err, apperrors.ErrSessionExpired) {
					log.Debug().Err(err).Msg("auto refresh failed, retrying next tick")
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*provider.AuthResponse, error) {
	return c.provider.SignInWithPassword(ctx, email, password)
}

func (c *Client) SignUp(ctx context.Context, params provider.SignUpParams) (*provider.AuthResponse, error) {
	return c.provider.SignUp(ctx, params)
}

// SignOut revokes the stored session at the provider. It does not touch
// storage; nothing stored is nothing to revoke.
func (c *Client) SignOut(ctx context.Context) error {
	stored, err := c.storage.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "[client SignOut] load")
	}
	if stored == nil || stored.AccessToken == "" {
		return nil
	}
	return c.provider.SignOut(ctx, stored.AccessToken)
}

func (c *Client) OAuthURL(params provider.OAuthParams) (string, error) {
	return c.provider.AuthorizeURL(params)
}

func (c *Client) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*provider.AuthResponse, error) {
	return c.provider.ExchangeCodeForSession(ctx, code, codeVerifier)
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.provider.ResetPasswordForEmail(ctx, email, redirectTo)
}

func (c *Client) VerifyOTP(ctx context.Context, tokenHash string, otpType provider.OTPType) (*provider.AuthResponse, error) {
	return c.provider.VerifyOTP(ctx, tokenHash, otpType)
}

// UpdateUser changes the signed in user and emits USER_UPDATED. Without a
// session it fails with ErrSessionMissing.
func (c *Client) UpdateUser(ctx context.Context, params provider.UpdateUserParams) (*users.User, error) {
	s, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.Wrap(apperrors.ErrSessionMissing, "[client UpdateUser]")
	}

	user, err := c.provider.UpdateUser(ctx, s.AccessToken, params)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = s.User
	}
	if err := c.setSession(ctx, s.WithUser(user), EventUserUpdated); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *Client) cachedFor(accessToken string) *sessions.Session {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.verified == nil || accessToken == "" || c.verified.AccessToken != accessToken {
		return nil
	}
	return c.verified
}

func (c *Client) remember(s *sessions.Session) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.verified = s
}

func (c *Client) forget() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.verified = nil
}
