package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/go-session-gate/client"
	"github.com/jrsteele09/go-session-gate/flowstate"
	"github.com/jrsteele09/go-session-gate/guard"
	"github.com/jrsteele09/go-session-gate/internal/config"
	"github.com/jrsteele09/go-session-gate/provider"
	"github.com/jrsteele09/go-session-gate/provider/providerfake"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "lucia@example.com"
	testPassword = "secret123"
	adminEmail   = "root@example.com"
)

type testFixture struct {
	fake   *providerfake.Provider
	server *Server
	http   *httptest.Server
	client *http.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("SITE_URL", "http://localhost:3000")

	cfg := config.New()
	fake := providerfake.New()
	_, err := fake.AddUser(testEmail, testPassword, users.RoleUser)
	require.NoError(t, err)
	_, err = fake.AddUser(adminEmail, testPassword, users.RoleAdmin)
	require.NoError(t, err)

	clientCfg := client.ConfigFrom(cfg)
	clientCfg.URL = providerfake.DefaultProjectURL
	clientCfg.AnonKey = "anon"
	factory, err := client.NewFactory(clientCfg, client.WithProvider(fake), client.WithVerifier(fake.Verifier()))
	require.NoError(t, err)

	s, err := New(cfg, factory, flowstate.NewInMemoryRepo())
	require.NoError(t, err)

	f := &testFixture{fake: fake, server: s, http: httptest.NewServer(s)}
	t.Cleanup(f.http.Close)
	f.client = f.newBrowser(t)
	return f
}

// newBrowser is an HTTP client with its own cookie jar that does not follow
// redirects.
func (f *testFixture) newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (f *testFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.http.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *testFixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := f.client.Post(f.http.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *testFixture) signIn(t *testing.T, email string) {
	t.Helper()
	resp := f.postJSON(t, RouteSignIn, credentialsRequest{Email: email, Password: testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSignInSessionAndSignOut(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.postJSON(t, RouteSignIn, credentialsRequest{Email: testEmail, Password: testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[SessionResponse](t, resp)
	require.Equal(t, testEmail, body.User.Email)

	var names []string
	for _, c := range resp.Cookies() {
		names = append(names, c.Name)
		require.True(t, c.HttpOnly)
	}
	require.ElementsMatch(t, []string{"sb-access-token", "sb-refresh-token"}, names)

	resp = f.get(t, RouteAPISession)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, testEmail, decodeBody[SessionResponse](t, resp).User.Email)

	resp = f.postJSON(t, RouteSignOut, struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.get(t, RouteAPISession)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, guard.UnauthorizedResponse, decodeBody[guard.ErrorResponse](t, resp))
}

func TestSignInFailures(t *testing.T) {
	f := setupTestFixture(t)

	testCases := []struct {
		name       string
		body       any
		wantStatus int
		wantError  string
	}{
		{
			name:       "wrong password",
			body:       credentialsRequest{Email: testEmail, Password: "nope"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid login credentials",
		},
		{
			name:       "invalid email",
			body:       credentialsRequest{Email: "lucia", Password: testPassword},
			wantStatus: http.StatusBadRequest,
			wantError:  "El email no es válido",
		},
		{
			name:       "not json",
			body:       "just a string",
			wantStatus: http.StatusBadRequest,
			wantError:  "Solicitud no válida",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.postJSON(t, RouteSignIn, tc.body)
			require.Equal(t, tc.wantStatus, resp.StatusCode)
			require.Equal(t, tc.wantError, decodeBody[guard.ErrorResponse](t, resp).Error)
			require.Empty(t, resp.Cookies())
		})
	}
}

func TestSignUpExistingUser(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.postJSON(t, RouteSignUp, credentialsRequest{Email: testEmail, Password: testPassword})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.postJSON(t, RouteSignUp, credentialsRequest{
		Email:    "nuevo@example.com",
		Password: testPassword,
		Metadata: map[string]any{"full_name": "Nuevo Usuario"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "nuevo@example.com", decodeBody[SessionResponse](t, resp).User.Email)
}

func TestAdminRouteRequiresRole(t *testing.T) {
	f := setupTestFixture(t)

	require.Equal(t, http.StatusUnauthorized, f.get(t, RouteAPIAdmin).StatusCode)

	f.signIn(t, testEmail)
	resp := f.get(t, RouteAPIAdmin)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, guard.ForbiddenResponse, decodeBody[guard.ErrorResponse](t, resp))

	f.client = f.newBrowser(t)
	f.signIn(t, adminEmail)
	require.Equal(t, http.StatusOK, f.get(t, RouteAPIAdmin).StatusCode)
}

func TestResetPasswordPageNeedsSession(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.get(t, RouteResetPassword)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestDashboardPage(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.get(t, RouteDashboard)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	f.signIn(t, testEmail)
	resp = f.get(t, RouteDashboard)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), testEmail)
}

func TestOAuthFlow(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.get(t, "/auth/oauth/github")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(location.String(), providerfake.DefaultProjectURL+"/auth/v1/authorize"))
	require.Equal(t, "github", location.Query().Get("provider"))
	require.Equal(t, "http://localhost:3000"+RouteCallback, location.Query().Get("redirect_to"))

	var flowCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "sb-auth-flow" {
			flowCookie = c
		}
	}
	require.NotNil(t, flowCookie)
	require.True(t, flowCookie.HttpOnly)

	code, err := f.fake.IssueCode(testEmail, location.Query().Get("code_challenge"))
	require.NoError(t, err)

	resp = f.get(t, RouteCallback+"?code="+url.QueryEscape(code))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))

	resp = f.get(t, RouteAPISession)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, testEmail, decodeBody[SessionResponse](t, resp).User.Email)
}

func TestOAuthCallbackFailuresStillRedirect(t *testing.T) {
	f := setupTestFixture(t)

	testCases := []struct {
		name  string
		query string
	}{
		{name: "provider error", query: "?error=access_denied&error_description=denied"},
		{name: "no flow", query: "?code=abc"},
		{name: "open redirect ignored", query: "?code=abc&next=//evil.example.com"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.get(t, RouteCallback+tc.query)
			require.Equal(t, http.StatusSeeOther, resp.StatusCode)
			require.Equal(t, "/dashboard", resp.Header.Get("Location"))
			for _, c := range resp.Cookies() {
				require.NotEqual(t, "sb-access-token", c.Name)
			}
		})
	}
	require.Equal(t, http.StatusUnauthorized, f.get(t, RouteAPISession).StatusCode)
}

func TestPasswordRecovery(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.postJSON(t, RouteResetPassword, emailRequest{Email: testEmail})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	recoveries := f.fake.Recoveries()
	require.Len(t, recoveries, 1)
	require.Equal(t, "http://localhost:3000"+RouteResetPassword, recoveries[0].RedirectTo)

	tokenHash, ok := f.fake.PendingOTP(testEmail, provider.OTPRecovery)
	require.True(t, ok)

	resp = f.get(t, RouteConfirm+"?type=recovery&token_hash="+tokenHash)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, RouteResetPassword, resp.Header.Get("Location"))

	resp = f.get(t, resp.Header.Get("Location"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), testEmail)

	resp = f.postJSON(t, RouteUpdatePassword, passwordRequest{Password: "nueva-clave"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f.client = f.newBrowser(t)
	resp = f.postJSON(t, RouteSignIn, credentialsRequest{Email: testEmail, Password: "nueva-clave"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The link was used up.
	resp = f.get(t, RouteConfirm+"?type=recovery&token_hash="+tokenHash)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/?error="))
}

func TestUpdatePasswordWithoutSession(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.postJSON(t, RouteUpdatePassword, passwordRequest{Password: "nueva-clave"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Auth session missing!", decodeBody[guard.ErrorResponse](t, resp).Error)
}

func TestHealthAndMetrics(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.get(t, RouteHealth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", decodeBody[statusResponse](t, resp).Status)

	resp = f.get(t, RouteMetrics)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `session_gate_outcomes_total{outcome="pass"}`)
}

func TestRequestIDAndRecover(t *testing.T) {
	f := setupTestFixture(t)
	f.server.RegisterRouteFunc("GET /boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})

	req, err := http.NewRequest(http.MethodGet, f.http.URL+"/boom", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "req-123")
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "req-123", resp.Header.Get(requestIDHeader))
	require.Equal(t, "Error interno", decodeBody[guard.ErrorResponse](t, resp).Error)

	resp = f.get(t, RouteHealth)
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))
	require.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))
}

func TestPreflight(t *testing.T) {
	f := setupTestFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.http.URL+RouteSignIn, nil)
	require.NoError(t, err)
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestSafeRedirect(t *testing.T) {
	testCases := []struct {
		target string
		want   string
	}{
		{target: "", want: "/home"},
		{target: "/settings", want: "/settings"},
		{target: "https://evil.example.com", want: "/home"},
		{target: "//evil.example.com", want: "/home"},
		{target: `/\evil.example.com`, want: "/home"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, safeRedirect(tc.target, "/home"), tc.target)
	}
}
