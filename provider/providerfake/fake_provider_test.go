package providerfake_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-gate/provider"
	"github.com/jrsteele09/go-session-gate/provider/providerfake"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testEmail    = "ana@example.com"
	testPassword = "secret123"
)

func newFake(t *testing.T, opts ...providerfake.Option) (*providerfake.Provider, *users.User) {
	t.Helper()
	p := providerfake.New(opts...)
	u, err := p.AddUser(testEmail, testPassword, users.RoleAdmin)
	require.NoError(t, err)
	return p, u
}

func requireProviderStatus(t *testing.T, err error, status int) {
	t.Helper()
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, status, pe.Status)
}

func TestSignInIssuesVerifiableTokens(t *testing.T) {
	p, seeded := newFake(t)
	ctx := context.Background()

	resp, err := p.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, resp.Session.Complete())
	require.Equal(t, seeded.ID, resp.User.ID)
	require.True(t, resp.User.HasRole(users.RoleAdmin))

	u, err := p.Verifier().Verify(ctx, resp.Session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, seeded.ID, u.ID)
	require.True(t, u.HasRole(users.RoleAdmin))

	u, err = p.GetUser(ctx, resp.Session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testEmail, u.Email)

	_, err = p.SignInWithPassword(ctx, testEmail, "wrong-password")
	requireProviderStatus(t, err, http.StatusBadRequest)
	require.True(t, provider.IsAuthFailure(err))
	require.Equal(t, 2, p.Calls(providerfake.OpSignIn))
}

func TestRefreshTokensAreSingleUse(t *testing.T) {
	p, _ := newFake(t)
	ctx := context.Background()

	first, err := p.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	second, err := p.RefreshSession(ctx, first.Session.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.Session.RefreshToken, second.Session.RefreshToken)

	_, err = p.RefreshSession(ctx, first.Session.RefreshToken)
	requireProviderStatus(t, err, http.StatusBadRequest)
	require.True(t, provider.IsAuthFailure(err))
}

func TestAccessTokensExpire(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p, _ := newFake(t,
		providerfake.WithNowFunc(func() time.Time { return now }),
		providerfake.WithAccessTokenExpiry(time.Minute),
	)
	ctx := context.Background()

	resp, err := p.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, now.Add(time.Minute).Equal(resp.Session.ExpiresAt))

	now = now.Add(2 * time.Minute)
	_, err = p.GetUser(ctx, resp.Session.AccessToken)
	requireProviderStatus(t, err, http.StatusUnauthorized)
}

func TestSignOutEndsEverySession(t *testing.T) {
	p, _ := newFake(t)
	ctx := context.Background()

	a, err := p.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)
	b, err := p.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx, a.Session.AccessToken))

	_, err = p.GetUser(ctx, b.Session.AccessToken)
	requireProviderStatus(t, err, http.StatusForbidden)
	_, err = p.RefreshSession(ctx, b.Session.RefreshToken)
	require.True(t, provider.IsAuthFailure(err))

	err = p.SignOut(ctx, a.Session.AccessToken)
	require.True(t, provider.IsAuthFailure(err))
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("autoconfirm", func(t *testing.T) {
		p := providerfake.New()
		resp, err := p.SignUp(ctx, provider.SignUpParams{Email: "new@example.com", Password: testPassword, Data: map[string]any{"name": "Nuevo"}})
		require.NoError(t, err)
		require.NotNil(t, resp.Session)
		require.Equal(t, "Nuevo", resp.User.Metadata["name"])

		_, err = p.SignUp(ctx, provider.SignUpParams{Email: "new@example.com", Password: testPassword})
		requireProviderStatus(t, err, http.StatusUnprocessableEntity)
	})

	t.Run("email confirmation", func(t *testing.T) {
		p := providerfake.New(providerfake.WithEmailConfirmation(true))
		resp, err := p.SignUp(ctx, provider.SignUpParams{Email: "new@example.com", Password: testPassword})
		require.NoError(t, err)
		require.Nil(t, resp.Session)
		require.NotNil(t, resp.User)

		_, err = p.SignInWithPassword(ctx, "new@example.com", testPassword)
		requireProviderStatus(t, err, http.StatusBadRequest)

		hash, ok := p.PendingOTP("new@example.com", provider.OTPSignUp)
		require.True(t, ok)
		confirmed, err := p.VerifyOTP(ctx, hash, provider.OTPEmail)
		require.NoError(t, err)
		require.True(t, confirmed.Session.Complete())

		_, err = p.SignInWithPassword(ctx, "new@example.com", testPassword)
		require.NoError(t, err)
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := providerfake.New().SignUp(ctx, provider.SignUpParams{Email: "new@example.com", Password: "123"})
		requireProviderStatus(t, err, http.StatusUnprocessableEntity)
	})
}

func TestUpdateUser(t *testing.T) {
	p, _ := newFake(t)
	ctx := context.Background()

	resp, err := p.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	_, err = p.UpdateUser(ctx, resp.Session.AccessToken, provider.UpdateUserParams{Password: testPassword})
	requireProviderStatus(t, err, http.StatusUnprocessableEntity)

	_, err = p.UpdateUser(ctx, resp.Session.AccessToken, provider.UpdateUserParams{Password: "brand-new-pass"})
	require.NoError(t, err)

	_, err = p.SignInWithPassword(ctx, testEmail, "brand-new-pass")
	require.NoError(t, err)
}

func TestExchangeCodeChecksVerifier(t *testing.T) {
	p, seeded := newFake(t)
	ctx := context.Background()
	verifier := oauth2.GenerateVerifier()

	code, err := p.IssueCode(testEmail, oauth2.S256ChallengeFromVerifier(verifier))
	require.NoError(t, err)
	_, err = p.ExchangeCodeForSession(ctx, code, oauth2.GenerateVerifier())
	requireProviderStatus(t, err, http.StatusBadRequest)

	code, err = p.IssueCode(testEmail, oauth2.S256ChallengeFromVerifier(verifier))
	require.NoError(t, err)
	resp, err := p.ExchangeCodeForSession(ctx, code, verifier)
	require.NoError(t, err)
	require.Equal(t, seeded.ID, resp.User.ID)

	_, err = p.ExchangeCodeForSession(ctx, code, verifier)
	requireProviderStatus(t, err, http.StatusNotFound)
}

func TestFailureInjectionAndHooks(t *testing.T) {
	p, _ := newFake(t)
	ctx := context.Background()
	outage := errors.New("connection refused")

	p.SetFailure(providerfake.OpSignIn, outage)
	_, err := p.SignInWithPassword(ctx, testEmail, testPassword)
	require.ErrorIs(t, err, outage)
	require.False(t, provider.IsAuthFailure(err))

	p.SetFailure(providerfake.OpSignIn, nil)
	_, err = p.SignInWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	hooked := 0
	p.SetHook(providerfake.OpRecover, func(ctx context.Context) { hooked++ })
	require.NoError(t, p.ResetPasswordForEmail(ctx, "unknown@example.com", "http://localhost:3000/auth/reset-password"))
	require.Equal(t, 1, hooked)
	require.Equal(t, []providerfake.RecoveryRequest{{Email: "unknown@example.com", RedirectTo: "http://localhost:3000/auth/reset-password"}}, p.Recoveries())
}

func TestRecoveryLinkIsSingleUse(t *testing.T) {
	p, seeded := newFake(t)
	ctx := context.Background()

	require.NoError(t, p.ResetPasswordForEmail(ctx, testEmail, "http://localhost:3000/auth/reset-password"))
	recoveries := p.Recoveries()
	require.Len(t, recoveries, 1)
	require.NotEmpty(t, recoveries[0].TokenHash)

	_, err := p.VerifyOTP(ctx, recoveries[0].TokenHash, provider.OTPSignUp)
	requireProviderStatus(t, err, http.StatusForbidden)

	resp, err := p.VerifyOTP(ctx, recoveries[0].TokenHash, provider.OTPRecovery)
	require.NoError(t, err)
	require.Equal(t, seeded.ID, resp.User.ID)

	_, err = p.VerifyOTP(ctx, recoveries[0].TokenHash, provider.OTPRecovery)
	requireProviderStatus(t, err, http.StatusForbidden)
}
