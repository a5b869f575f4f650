package server

import (
	"net/http"

	"github.com/jrsteele09/go-session-gate/auth"
	"github.com/jrsteele09/go-session-gate/provider"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// OAuthStartHandler begins a PKCE sign in and sends the browser to the
// provider. The flow ID rides in a short lived cookie.
func (s *Server) OAuthStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, err := s.authService(w, r)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		redirect, err := svc.SignInWithOAuth(r.Context(), r.PathValue("provider"))
		if err != nil {
			var authErr *auth.AuthError
			if errors.As(err, &authErr) {
				redirectWithError(w, r, s.config.GetSignInPath(), authErr.Message)
				return
			}
			writeAuthError(w, r, err)
			return
		}
		s.setFlowCookie(w, redirect.FlowID)
		http.Redirect(w, r, redirect.URL, http.StatusSeeOther)
	}
}

// OAuthCallbackHandler finishes the PKCE exchange. It always ends in a
// redirect to the post login page; when no session was stored the page
// guard sends the browser back to sign in.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())
		next := safeRedirect(r.URL.Query().Get("next"), s.config.GetPostLoginRedirect())

		var flowID string
		if c, err := r.Cookie(s.flowCookieName()); err == nil {
			flowID = c.Value
		}
		s.clearFlowCookie(w)

		if errParam := r.URL.Query().Get("error"); errParam != "" {
			logger.Warn().
				Str("error", errParam).
				Str("error_description", r.URL.Query().Get("error_description")).
				Msg("provider rejected the OAuth sign in")
			redirectSuccess(w, r, next)
			return
		}

		svc, err := s.authService(w, r)
		if err != nil {
			logger.Error().Err(err).Msg("building auth service for callback")
			redirectSuccess(w, r, next)
			return
		}
		if _, err := svc.ExchangeCode(r.Context(), r.URL.Query().Get("code"), flowID); err != nil {
			logger.Warn().Err(err).Msg("exchanging OAuth code")
		}
		redirectSuccess(w, r, next)
	}
}

// ConfirmHandler completes an email link. Recovery links land on the reset
// password page, everything else on next or the post login page.
func (s *Server) ConfirmHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())
		query := r.URL.Query()
		otpType := query.Get("type")

		next := safeRedirect(query.Get("next"), s.config.GetPostLoginRedirect())
		if otpType == string(provider.OTPRecovery) {
			next = RouteResetPassword
		}

		svc, err := s.authService(w, r)
		if err != nil {
			logger.Error().Err(err).Msg("building auth service for confirm")
			redirectWithError(w, r, s.config.GetSignInPath(), auth.MsgVerifyFailed)
			return
		}
		if _, err := svc.VerifyOTP(r.Context(), query.Get("token_hash"), otpType); err != nil {
			logger.Warn().Err(err).Str("type", otpType).Msg("verifying email link")
			redirectWithError(w, r, s.config.GetSignInPath(), auth.MsgVerifyFailed)
			return
		}
		redirectSuccess(w, r, next)
	}
}
