package server

import (
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// SIGN IN / SIGN OUT
	s.RegisterRouteFunc("POST "+RouteSignIn, s.SignInHandler())
	s.RegisterRouteFunc("POST "+RouteSignUp, s.SignUpHandler())
	s.RegisterRouteFunc("POST "+RouteSignOut, s.SignOutHandler())

	// PROVIDER REDIRECTS
	s.RegisterRouteFunc("GET "+RouteOAuth, s.OAuthStartHandler())
	s.RegisterRouteFunc("GET "+RouteCallback, s.OAuthCallbackHandler())
	s.RegisterRouteFunc("GET "+RouteConfirm, s.ConfirmHandler())

	// PASSWORDS
	s.RegisterRouteFunc("POST "+RouteResetPassword, s.ResetPasswordHandler())
	s.RegisterRouteFunc("GET "+RouteResetPassword, s.guard.Page(s.config.GetSignInPath(), s.ResetPasswordPageHandler()))
	s.RegisterRouteFunc("POST "+RouteUpdatePassword, s.UpdatePasswordHandler())

	// Protected routes
	s.RegisterRouteFunc("GET "+RouteAPISession, s.guard.WithAuth(s.SessionHandler()))
	s.RegisterRouteFunc("GET "+RouteAPIAdmin, s.guard.WithRoles([]string{string(users.RoleAdmin)}, s.SessionHandler()))
	s.RegisterRouteFunc("GET "+RouteDashboard, s.guard.Page(s.config.GetSignInPath(), s.DashboardHandler()))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
}
