// Package auth is the one surface the application uses for sign in, sign up,
// sign out, OAuth and password flows. Every failure it returns is an
// *AuthError, whatever the provider or transport reported.
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-gate/client"
	"github.com/jrsteele09/go-session-gate/flowstate"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/metrics"
	"github.com/jrsteele09/go-session-gate/provider"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/sessionstore"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	CallbackPath      = "/auth/callback"
	ResetPasswordPath = "/auth/reset-password"

	defaultSiteURL = "http://localhost:3000"
	defaultFlowTTL = 10 * time.Minute
)

// Operation names, used for metrics and logs.
const (
	opSignIn         = "sign_in"
	opSignUp         = "sign_up"
	opSignOut        = "sign_out"
	opOAuth          = "oauth"
	opExchangeCode   = "exchange_code"
	opResetPassword  = "reset_password"
	opUpdatePassword = "update_password"
	opVerifyOTP      = "verify_otp"
)

// OAuthRedirect is where to send the browser to sign in with a provider.
// FlowID must come back with the callback to complete the exchange.
type OAuthRedirect struct {
	URL    string
	FlowID string
}

type Service struct {
	client  *client.Client
	store   sessionstore.SessionStore
	flows   flowstate.Repo
	flowTTL time.Duration
	siteURL string
	metrics *metrics.Metrics
	nowFunc func() time.Time
}

type ServiceOption func(*Service)

// WithSiteURL sets the origin the provider's emails and redirects point back to.
func WithSiteURL(siteURL string) ServiceOption {
	return func(s *Service) {
		s.siteURL = siteURL
	}
}

func WithFlowRepo(repo flowstate.Repo) ServiceOption {
	return func(s *Service) {
		s.flows = repo
	}
}

func WithFlowTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.flowTTL = ttl
	}
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

// NewService builds the facade over c. Sessions obtained through it are
// written to store.
func NewService(c *client.Client, store sessionstore.SessionStore, options ...ServiceOption) (*Service, error) {
	if c == nil {
		return nil, errors.New("[auth NewService] client is required")
	}
	if store == nil {
		return nil, errors.New("[auth NewService] session store is required")
	}

	s := &Service{
		client:  c,
		store:   store,
		flowTTL: defaultFlowTTL,
		siteURL: defaultSiteURL,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.flows == nil {
		s.flows = flowstate.NewInMemoryRepo(flowstate.WithNowFunc(s.nowFunc))
	}
	return s, nil
}

// SignIn signs in with email and password and stores the new session.
func (s *Service) SignIn(ctx context.Context, email, password string) (session *sessions.Session, err error) {
	defer s.record(opSignIn, &err)

	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	resp, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, newAuthError(err, MsgSignInFailed)
	}
	session, ok := completeSession(resp)
	if !ok {
		return nil, incompleteError(MsgIncompleteSignIn)
	}
	if err := s.store.Write(ctx, session); err != nil {
		return nil, newAuthError(err, MsgSignInFailed)
	}
	return session, nil
}

// SignUp registers a user. When the provider requires email confirmation it
// answers without a session; that is reported as an incomplete sign up and
// nothing is stored.
func (s *Service) SignUp(ctx context.Context, email, password string, metadata map[string]any) (session *sessions.Session, err error) {
	defer s.record(opSignUp, &err)

	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	resp, err := s.client.SignUp(ctx, provider.SignUpParams{
		Email:           email,
		Password:        password,
		Data:            metadata,
		EmailRedirectTo: joinSiteURL(s.siteURL, CallbackPath),
	})
	if err != nil {
		return nil, newAuthError(err, MsgSignUpFailed)
	}
	session, ok := completeSession(resp)
	if !ok {
		return nil, incompleteError(MsgIncompleteSignUp)
	}
	if err := s.store.Write(ctx, session); err != nil {
		return nil, newAuthError(err, MsgSignUpFailed)
	}
	return session, nil
}

// SignOut revokes the session at the provider and always clears it locally.
// Signing out without a session succeeds.
func (s *Service) SignOut(ctx context.Context) (err error) {
	defer s.record(opSignOut, &err)

	revokeErr := s.client.SignOut(ctx)
	if revokeErr != nil && isGone(revokeErr) {
		revokeErr = nil
	}
	if err := s.store.Write(ctx, nil); err != nil {
		return newAuthError(err, MsgSignOutFailed)
	}
	if revokeErr != nil {
		log.Warn().Err(revokeErr).Msg("provider sign out failed, local session cleared")
		return newAuthError(revokeErr, MsgSignOutFailed)
	}
	return nil
}

// SignInWithOAuth starts a PKCE sign in with providerName. The session is not
// touched; it is established when the provider redirects to the callback.
func (s *Service) SignInWithOAuth(ctx context.Context, providerName string) (redirect *OAuthRedirect, err error) {
	defer s.record(opOAuth, &err)

	if err := validateOAuthProvider(providerName); err != nil {
		return nil, err
	}
	fallback := MsgOAuthFailedPrefix + providerName
	redirectTo := joinSiteURL(s.siteURL, CallbackPath)

	verifier := oauth2.GenerateVerifier()
	flowID := uuid.New().String()
	state := &flowstate.FlowState{
		CodeVerifier: verifier,
		Provider:     providerName,
		RedirectTo:   redirectTo,
		CreatedAt:    s.nowFunc(),
	}
	if err := s.flows.Save(ctx, flowID, state, s.flowTTL); err != nil {
		return nil, newAuthError(err, fallback)
	}

	authURL, err := s.client.OAuthURL(provider.OAuthParams{
		Provider:      providerName,
		RedirectTo:    redirectTo,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
	})
	if err != nil {
		return nil, newAuthError(err, fallback)
	}
	return &OAuthRedirect{URL: authURL, FlowID: flowID}, nil
}

// ExchangeCode completes an OAuth sign in started by SignInWithOAuth. A flow
// can be completed once.
func (s *Service) ExchangeCode(ctx context.Context, code, flowID string) (session *sessions.Session, err error) {
	defer s.record(opExchangeCode, &err)

	if code == "" {
		return nil, &AuthError{Message: MsgSignInFailed, Status: http.StatusBadRequest}
	}
	state, err := s.flows.Take(ctx, flowID)
	if err != nil {
		if errors.Is(err, apperrors.ErrFlowStateNotFound) {
			return nil, &AuthError{Message: MsgFlowNotFound, Status: http.StatusBadRequest, cause: err}
		}
		return nil, newAuthError(err, MsgSignInFailed)
	}

	fallback := MsgOAuthFailedPrefix + state.Provider
	resp, err := s.client.ExchangeCodeForSession(ctx, code, state.CodeVerifier)
	if err != nil {
		return nil, newAuthError(err, fallback)
	}
	session, ok := completeSession(resp)
	if !ok {
		return nil, incompleteError(MsgIncompleteSignIn)
	}
	if err := s.store.Write(ctx, session); err != nil {
		return nil, newAuthError(err, fallback)
	}
	return session, nil
}

// VerifyOTP completes an email link (sign up confirmation, magic link,
// invite or recovery) and stores the resulting session. A recovery link also
// emits PASSWORD_RECOVERY so the application can prompt for a new password.
func (s *Service) VerifyOTP(ctx context.Context, tokenHash, otpType string) (session *sessions.Session, err error) {
	defer s.record(opVerifyOTP, &err)

	typ, ok := provider.ParseOTPType(otpType)
	if !ok || tokenHash == "" {
		return nil, &AuthError{Message: MsgVerifyFailed, Status: http.StatusBadRequest}
	}
	resp, err := s.client.VerifyOTP(ctx, tokenHash, typ)
	if err != nil {
		return nil, newAuthError(err, MsgVerifyFailed)
	}
	session, ok = completeSession(resp)
	if !ok {
		return nil, incompleteError(MsgIncompleteSignIn)
	}
	if err := s.store.Write(ctx, session); err != nil {
		return nil, newAuthError(err, MsgVerifyFailed)
	}
	if typ == provider.OTPRecovery {
		s.client.Notify(client.EventPasswordRecovery, session)
	}
	return session, nil
}

// ResetPassword asks the provider to email a recovery link that lands on the
// reset password page.
func (s *Service) ResetPassword(ctx context.Context, email string) (err error) {
	defer s.record(opResetPassword, &err)

	if err := s.client.ResetPasswordForEmail(ctx, email, joinSiteURL(s.siteURL, ResetPasswordPath)); err != nil {
		return newAuthError(err, MsgResetFailed)
	}
	return nil
}

// UpdatePassword changes the signed in user's password.
func (s *Service) UpdatePassword(ctx context.Context, newPassword string) (session *sessions.Session, err error) {
	defer s.record(opUpdatePassword, &err)

	current := s.GetSession(ctx)
	if current == nil {
		return nil, sessionMissingError()
	}
	if newPassword == "" {
		return nil, &AuthError{Message: "La contraseña es obligatoria", Status: http.StatusBadRequest}
	}

	user, err := s.client.UpdateUser(ctx, provider.UpdateUserParams{Password: newPassword})
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionMissing) || errors.Is(err, apperrors.ErrSessionExpired) {
			return nil, sessionMissingError()
		}
		return nil, newAuthError(err, MsgUpdatePasswordFailed)
	}
	return current.WithUser(user), nil
}

// GetSession returns the current session, or nil when there is none or it
// cannot be read.
func (s *Service) GetSession(ctx context.Context) *sessions.Session {
	session, err := s.store.Read(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("reading session")
		return nil
	}
	return session
}

func (s *Service) GetUser(ctx context.Context) *users.User {
	session := s.GetSession(ctx)
	if session == nil {
		return nil
	}
	return session.User
}

func (s *Service) record(op string, err *error) {
	s.metrics.AuthOperation(op, *err)
	if *err != nil {
		log.Debug().Str("operation", op).Err(*err).Msg("auth operation failed")
	}
}

// completeSession returns the session of resp with its user, if the provider
// sent both.
func completeSession(resp *provider.AuthResponse) (*sessions.Session, bool) {
	if resp == nil || resp.Session == nil {
		return nil, false
	}
	session := resp.Session
	if session.User == nil && resp.User != nil {
		session = session.WithUser(resp.User)
	}
	return session, session.Complete()
}

// isGone reports whether a sign out failed only because the session was
// already invalid at the provider.
func isGone(err error) bool {
	switch provider.StatusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
