package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Sign in & Sign out
	RouteSignIn  = "/auth/signin"
	RouteSignUp  = "/auth/signup"
	RouteSignOut = "/auth/signout"

	// Auth Routes - Provider redirects
	RouteCallback = "/auth/callback"
	RouteConfirm  = "/auth/confirm"
	RouteOAuth    = "/auth/oauth/{provider}"

	// Auth Routes - Password Management
	RouteResetPassword  = "/auth/reset-password"
	RouteUpdatePassword = "/auth/update-password"

	// Protected Routes
	RouteAPISession = "/api/session"
	RouteAPIAdmin   = "/api/admin"
	RouteDashboard  = "/dashboard"

	// Operational Routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
