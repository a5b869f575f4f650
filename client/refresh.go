package client

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/provider"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// refreshTimeout bounds a shared refresh, which no longer follows the
// cancellation of the request that started it.
const refreshTimeout = 30 * time.Second

type rotatedPair struct {
	session *sessions.Session
	until   time.Time
}

// refresher exchanges refresh tokens. Concurrent exchanges of one token share
// a single provider call, and a token that was just rotated keeps resolving
// to its successor for the reuse interval.
type refresher struct {
	group         singleflight.Group
	rotated       map[string]rotatedPair // consumed refresh token to its successor
	reuseInterval time.Duration
	nowFunc       func() time.Time
	lock          sync.Mutex
}

func newRefresher(reuseInterval time.Duration, now func() time.Time) *refresher {
	return &refresher{
		rotated:       make(map[string]rotatedPair),
		reuseInterval: reuseInterval,
		nowFunc:       now,
	}
}

func (r *refresher) refresh(ctx context.Context, p provider.Provider, refreshToken string) (*sessions.Session, error) {
	if s := r.successor(refreshToken); s != nil {
		return s, nil
	}

	ch := r.group.DoChan(refreshToken, func() (interface{}, error) {
		// A flight for this token may have finished since the check above.
		if s := r.successor(refreshToken); s != nil {
			return s, nil
		}
		// Other requests may be waiting on this flight.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		resp, err := p.RefreshSession(flightCtx, refreshToken)
		if err != nil {
			return nil, err
		}
		if resp == nil || resp.Session == nil || !resp.Session.HasTokens() {
			return nil, errors.Wrap(apperrors.ErrInvalidToken, "refresh returned no session")
		}
		s := resp.Session
		if s.User == nil && resp.User != nil {
			s = s.WithUser(resp.User)
		}
		r.remember(refreshToken, s)
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*sessions.Session), nil
	}
}

func (r *refresher) successor(refreshToken string) *sessions.Session {
	r.lock.Lock()
	defer r.lock.Unlock()
	pair, ok := r.rotated[refreshToken]
	if !ok || !r.nowFunc().Before(pair.until) {
		return nil
	}
	return pair.session
}

func (r *refresher) remember(refreshToken string, s *sessions.Session) {
	if r.reuseInterval <= 0 {
		return
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	now := r.nowFunc()
	for token, pair := range r.rotated {
		if !now.Before(pair.until) {
			delete(r.rotated, token)
		}
	}
	r.rotated[refreshToken] = rotatedPair{session: s, until: now.Add(r.reuseInterval)}
}
