package guard_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-gate/client"
	"github.com/jrsteele09/go-session-gate/gate"
	"github.com/jrsteele09/go-session-gate/guard"
	"github.com/jrsteele09/go-session-gate/provider/providerfake"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/stretchr/testify/require"
)

const testPassword = "secret123"

type testFixture struct {
	fake    *providerfake.Provider
	factory *client.Factory
	guard   *guard.Guard
	calls   int
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	nowFunc := func() time.Time { return now }
	fake := providerfake.New(providerfake.WithNowFunc(nowFunc))

	factory, err := client.NewFactory(client.Config{URL: providerfake.DefaultProjectURL, AnonKey: "anon"},
		client.WithProvider(fake), client.WithNowFunc(nowFunc))
	require.NoError(t, err)

	return &testFixture{fake: fake, factory: factory, guard: guard.New(factory)}
}

func (f *testFixture) handler(w http.ResponseWriter, r *http.Request, s *sessions.Session) {
	f.calls++
	ctxSession, ok := sessions.FromContext(r.Context())
	if !ok || ctxSession.User.ID != s.User.ID {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	guard.WriteJSON(w, http.StatusOK, map[string]string{"user_id": s.User.ID})
}

func (f *testFixture) request(t *testing.T, email string, roles ...users.RoleType) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/api/resource", nil)
	if email == "" {
		return r
	}
	_, err := f.fake.AddUser(email, testPassword, roles...)
	require.NoError(t, err)
	resp, err := f.fake.SignInWithPassword(context.Background(), email, testPassword)
	require.NoError(t, err)
	for _, c := range f.factory.Config().Cookies.PairCookies(resp.Session) {
		r.AddCookie(c)
	}
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) guard.ErrorResponse {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body guard.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWithAuth(t *testing.T) {
	t.Run("no cookies", func(t *testing.T) {
		f := setupTestFixture(t)
		rec := httptest.NewRecorder()
		f.guard.WithAuth(f.handler)(rec, f.request(t, ""))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, guard.UnauthorizedResponse, decodeError(t, rec))
		require.Zero(t, f.calls)
	})

	t.Run("garbage cookies", func(t *testing.T) {
		f := setupTestFixture(t)
		r := f.request(t, "")
		names := f.factory.Config().Cookies.Names
		r.AddCookie(&http.Cookie{Name: names.Access, Value: "not-a-jwt"})
		r.AddCookie(&http.Cookie{Name: names.Refresh, Value: "not-a-token"})

		rec := httptest.NewRecorder()
		f.guard.WithAuth(f.handler)(rec, r)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Zero(t, f.calls)
	})

	t.Run("valid session", func(t *testing.T) {
		f := setupTestFixture(t)
		rec := httptest.NewRecorder()
		f.guard.WithAuth(f.handler)(rec, f.request(t, "pablo@example.com", users.RoleUser))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 1, f.calls)
	})

	t.Run("provider unreachable fails closed", func(t *testing.T) {
		f := setupTestFixture(t)
		r := f.request(t, "pablo@example.com", users.RoleUser)
		f.fake.SetFailure(providerfake.OpGetUser, errors.New("connection reset by peer"))

		rec := httptest.NewRecorder()
		f.guard.WithAuth(f.handler)(rec, r)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Zero(t, f.calls)
	})
}

func TestWithRoles(t *testing.T) {
	tests := []struct {
		name     string
		has      []users.RoleType
		required []string
		allowed  bool
	}{
		{name: "exact role", has: []users.RoleType{users.RoleAdmin}, required: []string{"admin"}, allowed: true},
		{name: "any role suffices", has: []users.RoleType{users.RoleEditor}, required: []string{"admin", "editor"}, allowed: true},
		{name: "one of many held", has: []users.RoleType{users.RoleUser, users.RoleEditor}, required: []string{"editor"}, allowed: true},
		{name: "no intersection", has: []users.RoleType{users.RoleUser}, required: []string{"admin", "editor"}, allowed: false},
		{name: "no roles held", has: nil, required: []string{"user"}, allowed: false},
		{name: "nothing required", has: []users.RoleType{users.RoleAdmin}, required: nil, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			rec := httptest.NewRecorder()
			f.guard.WithRoles(tt.required, f.handler)(rec, f.request(t, "rosa@example.com", tt.has...))

			if tt.allowed {
				require.Equal(t, http.StatusOK, rec.Code)
				require.Equal(t, 1, f.calls)
				return
			}
			require.Equal(t, http.StatusForbidden, rec.Code)
			require.Equal(t, guard.ForbiddenResponse, decodeError(t, rec))
			require.Zero(t, f.calls)
		})
	}

	t.Run("no session is 401 not 403", func(t *testing.T) {
		f := setupTestFixture(t)
		rec := httptest.NewRecorder()
		f.guard.WithRoles([]string{"admin"}, f.handler)(rec, f.request(t, ""))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Zero(t, f.calls)
	})
}

func TestPage(t *testing.T) {
	t.Run("redirects without a session", func(t *testing.T) {
		f := setupTestFixture(t)
		rec := httptest.NewRecorder()
		f.guard.Page("/login", f.handler)(rec, f.request(t, ""))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/login", rec.Header().Get("Location"))
		require.Zero(t, f.calls)
	})

	t.Run("renders with a session", func(t *testing.T) {
		f := setupTestFixture(t)
		rec := httptest.NewRecorder()
		f.guard.Page("/login", f.handler)(rec, f.request(t, "pablo@example.com"))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 1, f.calls)
	})
}

func TestGuardReusesGateVerification(t *testing.T) {
	f := setupTestFixture(t)
	g := gate.New(f.factory)
	h := g.Middleware(f.guard.WithAuth(f.handler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, f.request(t, "pablo@example.com", users.RoleUser))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.fake.Calls(providerfake.OpGetUser), "the guard reads the session the gate verified")
}
