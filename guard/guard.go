// Package guard enforces "must have a valid session" at page and API route
// boundaries. Unlike the gate it fails closed: a session that cannot be
// verified is no session.
package guard

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-session-gate/client"
	"github.com/jrsteele09/go-session-gate/metrics"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/sessionstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Response bodies of rejected API requests.
var (
	UnauthorizedResponse = ErrorResponse{Error: "No autorizado", Message: "Debes iniciar sesión para acceder a este recurso"}
	ForbiddenResponse    = ErrorResponse{Error: "Acceso denegado", Message: "No tienes los permisos necesarios"}
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SessionHandler is a handler that only runs with a verified session.
type SessionHandler func(w http.ResponseWriter, r *http.Request, s *sessions.Session)

type Guard struct {
	factory *client.Factory
	metrics *metrics.Metrics
}

type Option func(*Guard)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func New(factory *client.Factory, opts ...Option) *Guard {
	g := &Guard{factory: factory}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Session reads the request's session through the client the gate bound to
// the request, or a new one when the gate did not run.
func (g *Guard) Session(w http.ResponseWriter, r *http.Request) (*sessions.Session, error) {
	c, ok := client.FromContext(r.Context())
	if !ok {
		var err error
		if c, err = g.factory.Server(client.NewRequestJar(w, r)); err != nil {
			return nil, err
		}
	}
	store, err := sessionstore.NewServer(c)
	if err != nil {
		return nil, err
	}
	return store.Read(r.Context())
}

// RequireSession returns the session, or redirects to redirectTo and
// returns false. Callers must return when it reports false.
func (g *Guard) RequireSession(w http.ResponseWriter, r *http.Request, redirectTo string) (*sessions.Session, bool) {
	s, err := g.Session(w, r)
	if err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("session check failed, treating request as signed out")
	}
	if s == nil {
		g.metrics.GuardDecision(metrics.DecisionRedirected)
		http.Redirect(w, r, redirectTo, http.StatusSeeOther)
		return nil, false
	}
	g.metrics.GuardDecision(metrics.DecisionAllowed)
	return s, true
}

// Page guards a server rendered page.
func (g *Guard) Page(redirectTo string, next SessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.RequireSession(w, r, redirectTo)
		if !ok {
			return
		}
		next(w, r.WithContext(sessions.NewContext(r.Context(), s)), s)
	}
}

// WithAuth guards an API route, answering 401 without a session.
func (g *Guard) WithAuth(next SessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.authenticate(w, r)
		if !ok {
			return
		}
		g.metrics.GuardDecision(metrics.DecisionAllowed)
		next(w, r.WithContext(sessions.NewContext(r.Context(), s)), s)
	}
}

// WithRoles is WithAuth plus a role check: the user needs any one of roles.
// No roles means nobody is allowed.
func (g *Guard) WithRoles(roles []string, next SessionHandler) http.HandlerFunc {
	required := append([]string(nil), roles...)
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := g.authenticate(w, r)
		if !ok {
			return
		}
		if !s.User.HasAnyRole(required...) {
			log.Debug().Str("user_id", s.User.ID).Strs("required", required).Msg("missing role")
			g.metrics.GuardDecision(metrics.DecisionForbidden)
			WriteJSON(w, http.StatusForbidden, ForbiddenResponse)
			return
		}
		g.metrics.GuardDecision(metrics.DecisionAllowed)
		next(w, r.WithContext(sessions.NewContext(r.Context(), s)), s)
	}
}

func (g *Guard) authenticate(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	s, err := g.Session(w, r)
	if err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("session check failed, rejecting request")
	}
	if s == nil {
		g.metrics.GuardDecision(metrics.DecisionUnauthorized)
		WriteJSON(w, http.StatusUnauthorized, UnauthorizedResponse)
		return nil, false
	}
	return s, true
}

// WriteJSON writes v as the JSON body of a status response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(errors.Wrap(err, "[guard WriteJSON]")).Msg("writing response")
	}
}
