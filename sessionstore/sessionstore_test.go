package sessionstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-gate/client"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/provider/providerfake"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/sessionstore"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "luis@example.com"
	testPassword = "secret123"
)

type testFixture struct {
	now     time.Time
	fake    *providerfake.Provider
	factory *client.Factory
	user    *users.User
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	nowFunc := func() time.Time { return f.now }
	f.fake = providerfake.New(providerfake.WithNowFunc(nowFunc))

	var err error
	f.user, err = f.fake.AddUser(testEmail, testPassword, users.RoleEditor)
	require.NoError(t, err)

	f.factory, err = client.NewFactory(client.Config{URL: providerfake.DefaultProjectURL, AnonKey: "anon"},
		client.WithProvider(f.fake), client.WithNowFunc(nowFunc))
	require.NoError(t, err)
	return f
}

func (f *testFixture) signIn(t *testing.T) *sessions.Session {
	t.Helper()
	resp, err := f.fake.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	return resp.Session
}

func (f *testFixture) serverStore(t *testing.T, jar client.CookieJar) *sessionstore.Store {
	t.Helper()
	c, err := f.factory.Server(jar)
	require.NoError(t, err)
	store, err := sessionstore.NewServer(c)
	require.NoError(t, err)
	return store
}

func TestStoreConstructorsCheckClientKind(t *testing.T) {
	f := setupTestFixture(t)

	browser, err := f.factory.Browser(client.NewMemoryStorage())
	require.NoError(t, err)
	server, err := f.factory.Server(client.NewMemoryJar())
	require.NoError(t, err)

	_, err = sessionstore.NewServer(browser)
	require.ErrorIs(t, err, apperrors.ErrContext)

	_, err = sessionstore.NewBrowser(server)
	require.ErrorIs(t, err, apperrors.ErrContext)

	_, err = sessionstore.NewServer(nil)
	require.ErrorIs(t, err, apperrors.ErrContext)

	_, err = sessionstore.NewBrowser(browser)
	require.NoError(t, err)
}

func TestServerStoreReadWrite(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	t.Run("empty jar reads nil", func(t *testing.T) {
		s, err := f.serverStore(t, client.NewMemoryJar()).Read(ctx)
		require.NoError(t, err)
		require.Nil(t, s)
	})

	t.Run("write then read in the same request", func(t *testing.T) {
		jar := client.NewMemoryJar()
		store := f.serverStore(t, jar)
		issued := f.signIn(t)

		require.NoError(t, store.Write(ctx, issued))
		got, err := store.Read(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, f.user.ID, got.User.ID)

		// A later request sees the same session through the cookies alone.
		next, err := f.serverStore(t, jar).Read(ctx)
		require.NoError(t, err)
		require.Equal(t, issued.AccessToken, next.AccessToken)
	})

	t.Run("incomplete session is rejected", func(t *testing.T) {
		jar := client.NewMemoryJar()
		store := f.serverStore(t, jar)
		issued := f.signIn(t)

		partial := *issued
		partial.User = nil
		require.ErrorIs(t, store.Write(ctx, &partial), apperrors.ErrIncompleteCredentials)

		_, ok := jar.Get(f.factory.Config().Cookies.Names.Access)
		require.False(t, ok)
	})

	t.Run("write nil deletes the cookie pair", func(t *testing.T) {
		jar := client.NewMemoryJar()
		store := f.serverStore(t, jar)
		require.NoError(t, store.Write(ctx, f.signIn(t)))

		require.NoError(t, store.Write(ctx, nil))
		names := f.factory.Config().Cookies.Names
		_, ok := jar.Get(names.Access)
		require.False(t, ok)
		_, ok = jar.Get(names.Refresh)
		require.False(t, ok)
	})
}

func TestServerStoreReadDeletesRevokedSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	jar := client.NewMemoryJar()
	store := f.serverStore(t, jar)
	issued := f.signIn(t)
	require.NoError(t, store.Write(ctx, issued))
	require.NoError(t, f.fake.SignOut(ctx, issued.AccessToken))

	s, err := f.serverStore(t, jar).Read(ctx)
	require.NoError(t, err)
	require.Nil(t, s)

	names := f.factory.Config().Cookies.Names
	_, ok := jar.Get(names.Access)
	require.False(t, ok, "stale access cookie must be deleted")
	_, ok = jar.Get(names.Refresh)
	require.False(t, ok, "stale refresh cookie must be deleted")
}

func TestServerStoreReadReturnsTransportErrors(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	jar := client.NewMemoryJar()
	require.NoError(t, f.serverStore(t, jar).Write(ctx, f.signIn(t)))

	outage := errors.New("dial tcp: connection refused")
	f.fake.SetFailure(providerfake.OpGetUser, outage)

	s, err := f.serverStore(t, jar).Read(ctx)
	require.ErrorIs(t, err, outage)
	require.Nil(t, s)

	_, ok := jar.Get(f.factory.Config().Cookies.Names.Refresh)
	require.True(t, ok, "an outage must not sign the user out")
}

func TestBrowserStoreNotifications(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	c, err := f.factory.Browser(client.NewMemoryStorage())
	require.NoError(t, err)
	store, err := sessionstore.NewBrowser(c)
	require.NoError(t, err)

	var (
		events []client.Event
		lock   sync.Mutex
	)
	unsubscribe := store.Subscribe(ctx, func(event client.Event, _ *sessions.Session) {
		lock.Lock()
		defer lock.Unlock()
		events = append(events, event)
	})

	var changes []*sessions.Session
	dispose := store.OnChange(func(s *sessions.Session) { changes = append(changes, s) })

	issued := f.signIn(t)
	require.NoError(t, store.Write(ctx, issued))
	require.NoError(t, store.Write(ctx, nil))

	unsubscribe()
	dispose()
	require.NoError(t, store.Write(ctx, f.signIn(t)))

	require.Equal(t, []client.Event{client.EventInitialSession, client.EventSignedIn, client.EventSignedOut}, events)
	require.Len(t, changes, 2)
	require.Equal(t, issued.AccessToken, changes[0].AccessToken)
	require.Nil(t, changes[1])
}

func TestBrowserStoreSubscribeDeliversCurrentSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	c, err := f.factory.Browser(client.NewMemoryStorage())
	require.NoError(t, err)
	store, err := sessionstore.NewBrowser(c)
	require.NoError(t, err)
	issued := f.signIn(t)
	require.NoError(t, store.Write(ctx, issued))

	var initial *sessions.Session
	unsubscribe := store.Subscribe(ctx, func(event client.Event, s *sessions.Session) {
		if event == client.EventInitialSession {
			initial = s
		}
	})
	defer unsubscribe()

	require.NotNil(t, initial)
	require.Equal(t, f.user.ID, initial.User.ID)
}
