// Package gate keeps the session cookies of every request fresh before any
// route sees the request.
package gate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-gate/client"
	"github.com/jrsteele09/go-session-gate/internal/config"
	"github.com/jrsteele09/go-session-gate/metrics"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/sessionstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Outcome is how the gate left a request's session.
type Outcome string

const (
	// OutcomePass means the cookies were valid, or absent, and left alone.
	OutcomePass Outcome = "pass"
	// OutcomeRenew means a new Cookie Pair was written to the response.
	OutcomeRenew Outcome = "renew"
	// OutcomeExpired means the provider rejected the session and the cookies
	// were deleted.
	OutcomeExpired Outcome = "expired"
	// OutcomeDegrade means the session could not be checked. The request
	// continues untouched and the guards decide.
	OutcomeDegrade Outcome = "degrade"
)

type Gate struct {
	factory *client.Factory
	cors    config.CorsConfig
	matcher *RouteMatcher
	metrics *metrics.Metrics
	nowFunc func() time.Time
}

type Option func(*Gate)

// WithCors adds CORS headers to every gated response.
func WithCors(cors config.CorsConfig) Option {
	return func(g *Gate) {
		g.cors = cors
	}
}

func WithMatcher(m *RouteMatcher) Option {
	return func(g *Gate) {
		g.matcher = m
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(g *Gate) {
		g.nowFunc = now
	}
}

func New(factory *client.Factory, opts ...Option) *Gate {
	g := &Gate{
		factory: factory,
		matcher: DefaultRouteMatcher(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware runs the gate for every matched request. OPTIONS requests are
// answered with 204 and never reach next; on matched paths the refresh runs
// first.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.matcher.Match(r.URL.Path) {
			if r.Method == http.MethodOptions {
				g.setCorsHeaders(w)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		r, _ = g.Refresh(w, r)
		g.setCorsHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Refresh validates the request's Cookie Pair, writing renewed or deleted
// cookies to w. The returned request carries the server client and, when
// there is one, the session. It never fails.
func (g *Gate) Refresh(w http.ResponseWriter, r *http.Request) (*http.Request, Outcome) {
	start := g.nowFunc()
	jar := client.NewRequestJar(w, r)

	c, err := g.factory.Server(jar)
	if err != nil {
		g.degrade(r, err, start)
		return r, OutcomeDegrade
	}
	ctx := client.NewContext(r.Context(), c)

	session, outcome, err := g.check(ctx, c, jar)
	if err != nil {
		g.degrade(r, err, start)
		return r.WithContext(ctx), OutcomeDegrade
	}
	ctx = sessions.NewContext(ctx, session)

	if outcome == OutcomeExpired {
		log.Debug().Str("path", r.URL.Path).Msg("session expired, cookies removed")
	}
	g.metrics.GateOutcome(string(outcome), g.nowFunc().Sub(start))
	return r.WithContext(ctx), outcome
}

func (g *Gate) check(ctx context.Context, c *client.Client, jar *client.RequestJar) (session *sessions.Session, outcome Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			session, outcome = nil, OutcomeDegrade
			err = errors.New(fmt.Sprint("panic: ", rec))
		}
	}()

	names := c.CookieOptions().Names
	before, _ := jar.Get(names.Access)
	_, hadRefresh := jar.Get(names.Refresh)

	store, err := sessionstore.NewServer(c)
	if err != nil {
		return nil, OutcomeDegrade, err
	}
	session, err = store.Read(ctx)
	if err != nil {
		return nil, OutcomeDegrade, err
	}

	switch {
	case session == nil && (before != "" || hadRefresh):
		return nil, OutcomeExpired, nil
	case session != nil && session.AccessToken != before:
		return session, OutcomeRenew, nil
	default:
		return session, OutcomePass, nil
	}
}

func (g *Gate) degrade(r *http.Request, err error, start time.Time) {
	log.Warn().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("session gate degraded, continuing without a verified session")
	g.metrics.GateOutcome(string(OutcomeDegrade), g.nowFunc().Sub(start))
}

func (g *Gate) setCorsHeaders(w http.ResponseWriter) {
	if g.cors == nil {
		return
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", g.cors.GetAllowedOrigin())
	h.Set("Access-Control-Allow-Methods", g.cors.GetAllowedMethods())
	h.Set("Access-Control-Allow-Headers", g.cors.GetAllowedHeaders())
	h.Set("Access-Control-Allow-Credentials", "true")
}
