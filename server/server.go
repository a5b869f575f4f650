package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-gate/auth"
	"github.com/jrsteele09/go-session-gate/client"
	"github.com/jrsteele09/go-session-gate/flowstate"
	"github.com/jrsteele09/go-session-gate/gate"
	"github.com/jrsteele09/go-session-gate/guard"
	"github.com/jrsteele09/go-session-gate/internal/config"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/metrics"
	"github.com/jrsteele09/go-session-gate/sessionstore"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	handler  http.Handler
	routes   []string
	config   config.Config
	factory  *client.Factory
	flows    flowstate.Repo
	gate     *gate.Gate
	guard    *guard.Guard
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

type Option func(*Server)

// WithRegistry collects the server's metrics in reg instead of a fresh
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

func New(cfg config.Config, factory *client.Factory, flows flowstate.Repo, opts ...Option) (*Server, error) {
	if factory == nil {
		return nil, errors.New("[Server New] a client factory is required")
	}
	if flows == nil {
		return nil, errors.Wrap(apperrors.ErrConfiguration, "[Server New] a flow state repo is required")
	}

	s := &Server{
		env:     cfg.GetEnv(),
		mux:     http.NewServeMux(),
		config:  cfg,
		factory: factory,
		flows:   flows,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	s.metrics = metrics.New(s.registry)
	s.gate = gate.New(factory, gate.WithCors(cfg), gate.WithMetrics(s.metrics))
	s.guard = guard.New(factory, guard.WithMetrics(s.metrics))

	s.initRoutes()
	s.handler = ChainMiddleware(s.gate.Middleware(s.mux),
		s.RequestIDMiddleware,
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.FrameSecurityMiddleware,
	)
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// authService builds the auth facade over the request's server client. The
// gate has usually put one in the context already.
func (s *Server) authService(w http.ResponseWriter, r *http.Request) (*auth.Service, error) {
	c, ok := client.FromContext(r.Context())
	if !ok {
		var err error
		c, err = s.factory.Server(client.NewRequestJar(w, r))
		if err != nil {
			return nil, errors.Wrap(err, "[Server authService]")
		}
	}
	store, err := sessionstore.NewServer(c)
	if err != nil {
		return nil, errors.Wrap(err, "[Server authService]")
	}
	return auth.NewService(c, store,
		auth.WithSiteURL(s.config.GetSiteURL()),
		auth.WithFlowRepo(s.flows),
		auth.WithFlowTTL(s.config.GetFlowTTL()),
		auth.WithMetrics(s.metrics),
	)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Info().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
