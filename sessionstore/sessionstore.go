// Package sessionstore reads and writes the current session through a
// client, hiding where the session lives.
package sessionstore

import (
	"context"

	"github.com/jrsteele09/go-session-gate/client"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionStore is the session of one browser context or one request.
// Read returns nil, nil when there is no usable session.
type SessionStore interface {
	Read(ctx context.Context) (*sessions.Session, error)
	Write(ctx context.Context, s *sessions.Session) error
}

// Notifier reports session changes. The returned dispose func stops delivery
// and must be called when the subscriber goes away.
type Notifier interface {
	OnChange(fn func(*sessions.Session)) (dispose func())
}

// Store is the server variant, bound to one request's cookies.
type Store struct {
	client *client.Client
}

var _ SessionStore = (*Store)(nil)

// NewServer wraps a server or admin client.
func NewServer(c *client.Client) (*Store, error) {
	if c == nil {
		return nil, &apperrors.ContextError{Kind: string(client.KindServer), Reason: "requires a client"}
	}
	if c.Kind() != client.KindServer && c.Kind() != client.KindAdmin {
		return nil, &apperrors.ContextError{Kind: string(client.KindServer), Reason: "cannot use a " + string(c.Kind()) + " client"}
	}
	return &Store{client: c}, nil
}

// Read returns the verified session, refreshing it if needed. A session the
// provider rejected has already been removed from the cookies and reads as
// nil. Transport failures are returned so the caller can tell "signed out"
// from "could not check".
func (s *Store) Read(ctx context.Context) (*sessions.Session, error) {
	session, err := s.client.Session(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionExpired) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[sessionstore Read]")
	}
	if !session.Complete() {
		if session != nil {
			log.Debug().Str("client", string(s.client.Kind())).Msg("ignoring incomplete session")
		}
		return nil, nil
	}
	return session, nil
}

// Write stores s, or clears the session when s is nil.
func (s *Store) Write(ctx context.Context, session *sessions.Session) error {
	if session == nil {
		return s.client.ClearSession(ctx)
	}
	if !session.Complete() {
		return errors.Wrap(apperrors.ErrIncompleteCredentials, "[sessionstore Write]")
	}
	return s.client.SetSession(ctx, session)
}

func (s *Store) Client() *client.Client {
	return s.client
}

// BrowserStore is the variant shared by everything in one browser context.
// Besides reading and writing it tells subscribers when the session changes.
type BrowserStore struct {
	Store
}

var (
	_ SessionStore = (*BrowserStore)(nil)
	_ Notifier     = (*BrowserStore)(nil)
)

func NewBrowser(c *client.Client) (*BrowserStore, error) {
	if c == nil || c.Kind() != client.KindBrowser {
		return nil, &apperrors.ContextError{Kind: string(client.KindBrowser), Reason: "requires the browser client"}
	}
	return &BrowserStore{Store{client: c}}, nil
}

// OnChange calls fn with the new session, or nil, on every change.
func (b *BrowserStore) OnChange(fn func(*sessions.Session)) func() {
	return b.client.OnAuthStateChange(func(_ client.Event, s *sessions.Session) {
		fn(s)
	})
}

// Subscribe delivers INITIAL_SESSION with the current session, then every
// later event in the order the client emits them. A failure to read the
// initial session is delivered as INITIAL_SESSION with nil.
func (b *BrowserStore) Subscribe(ctx context.Context, l client.Listener) func() {
	initial, err := b.Read(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("reading initial session")
	}
	l(client.EventInitialSession, initial)
	return b.client.OnAuthStateChange(l)
}
