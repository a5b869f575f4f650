package client

import (
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/go-session-gate/sessions"
)

// Event is an authentication state change.
type Event string

const (
	EventInitialSession   Event = "INITIAL_SESSION"
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventTokenRefreshed   Event = "TOKEN_REFRESHED"
	EventUserUpdated      Event = "USER_UPDATED"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
)

// Listener receives events synchronously on the goroutine that caused them.
// The session is nil for EventSignedOut.
type Listener func(event Event, s *sessions.Session)

type subscription struct {
	listener Listener
	active   atomic.Bool
}

type listenerSet struct {
	subs []*subscription
	lock sync.Mutex
}

// add registers l. The returned func is idempotent; once it returns no new
// delivery to l starts.
func (ls *listenerSet) add(l Listener) func() {
	sub := &subscription{listener: l}
	sub.active.Store(true)

	ls.lock.Lock()
	ls.subs = append(ls.subs, sub)
	ls.lock.Unlock()

	return func() {
		if !sub.active.CompareAndSwap(true, false) {
			return
		}
		ls.lock.Lock()
		defer ls.lock.Unlock()
		for i, s := range ls.subs {
			if s == sub {
				ls.subs = append(ls.subs[:i:i], ls.subs[i+1:]...)
				break
			}
		}
	}
}

func (ls *listenerSet) emit(event Event, s *sessions.Session) {
	ls.lock.Lock()
	subs := append([]*subscription(nil), ls.subs...)
	ls.lock.Unlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.listener(event, s)
		}
	}
}
