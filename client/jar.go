package client

import (
	"net/http"
	"strings"
	"sync"

	"github.com/jrsteele09/go-session-gate/sessions"
)

// CookieJar is the cookie access a server client is bound to. Writes must be
// visible to later reads through the same jar.
type CookieJar interface {
	Get(name string) (string, bool)
	Set(c *http.Cookie)
	Remove(name string, opts sessions.CookieOptions)
}

// RequestJar binds one HTTP exchange: reads come from the request, writes go
// to the response as Set-Cookie and shadow the request's value from then on.
type RequestJar struct {
	w       http.ResponseWriter
	r       *http.Request
	overlay map[string]*http.Cookie
	lock    sync.Mutex
}

var _ CookieJar = (*RequestJar)(nil)

func NewRequestJar(w http.ResponseWriter, r *http.Request) *RequestJar {
	return &RequestJar{w: w, r: r, overlay: make(map[string]*http.Cookie)}
}

func (j *RequestJar) Get(name string) (string, bool) {
	j.lock.Lock()
	defer j.lock.Unlock()

	if c, ok := j.overlay[name]; ok {
		if c.MaxAge < 0 || c.Value == "" {
			return "", false
		}
		return c.Value, true
	}
	c, err := j.r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Set writes c to the response, replacing an earlier Set-Cookie for the same
// name written through this jar.
func (j *RequestJar) Set(c *http.Cookie) {
	j.lock.Lock()
	defer j.lock.Unlock()

	if _, seen := j.overlay[c.Name]; seen {
		h := j.w.Header()
		kept := h["Set-Cookie"][:0]
		for _, line := range h["Set-Cookie"] {
			if !strings.HasPrefix(line, c.Name+"=") {
				kept = append(kept, line)
			}
		}
		h["Set-Cookie"] = kept
	}
	j.overlay[c.Name] = c
	http.SetCookie(j.w, c)
}

func (j *RequestJar) Remove(name string, opts sessions.CookieOptions) {
	j.Set(opts.ClearCookie(name))
}

// Written returns the cookies set through the jar, in no particular order.
func (j *RequestJar) Written() []*http.Cookie {
	j.lock.Lock()
	defer j.lock.Unlock()
	out := make([]*http.Cookie, 0, len(j.overlay))
	for _, c := range j.overlay {
		out = append(out, c)
	}
	return out
}

// MemoryJar is a jar with no HTTP exchange behind it, for jobs and tests.
type MemoryJar struct {
	cookies map[string]*http.Cookie
	lock    sync.RWMutex
}

var _ CookieJar = (*MemoryJar)(nil)

func NewMemoryJar(cookies ...*http.Cookie) *MemoryJar {
	j := &MemoryJar{cookies: make(map[string]*http.Cookie)}
	for _, c := range cookies {
		j.cookies[c.Name] = c
	}
	return j
}

func (j *MemoryJar) Get(name string) (string, bool) {
	j.lock.RLock()
	defer j.lock.RUnlock()
	c, ok := j.cookies[name]
	if !ok || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (j *MemoryJar) Set(c *http.Cookie) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if c.MaxAge < 0 {
		delete(j.cookies, c.Name)
		return
	}
	j.cookies[c.Name] = c
}

func (j *MemoryJar) Remove(name string, opts sessions.CookieOptions) {
	j.Set(opts.ClearCookie(name))
}

// Cookie returns the stored cookie with its attributes.
func (j *MemoryJar) Cookie(name string) (*http.Cookie, bool) {
	j.lock.RLock()
	defer j.lock.RUnlock()
	c, ok := j.cookies[name]
	return c, ok
}
