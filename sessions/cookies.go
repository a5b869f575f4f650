package sessions

import (
	"net/http"
	"time"
)

// CookieNames are the names of the two cookies that make up a Cookie Pair.
type CookieNames struct {
	Access  string
	Refresh string
}

func NewCookieNames(prefix string) CookieNames {
	if prefix == "" {
		prefix = "sb"
	}
	return CookieNames{
		Access:  prefix + "-access-token",
		Refresh: prefix + "-refresh-token",
	}
}

// CookieOptions are the attributes applied to every session cookie.
type CookieOptions struct {
	Names         CookieNames
	Path          string
	Domain        string
	Secure        bool // Set in production
	SameSite      http.SameSite
	RefreshMaxAge time.Duration
}

func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Names:         NewCookieNames("sb"),
		Path:          "/",
		SameSite:      http.SameSiteLaxMode,
		RefreshMaxAge: 7 * 24 * time.Hour,
	}
}

// PairCookies serializes the session's token pair. The access cookie lives
// exactly as long as the access token; the refresh cookie outlives it so an
// expired pair can still be renewed.
func (o CookieOptions) PairCookies(s *Session) []*http.Cookie {
	access := o.cookie(o.Names.Access, s.AccessToken)
	access.Expires = s.ExpiresAt.UTC()

	refresh := o.cookie(o.Names.Refresh, s.RefreshToken)
	if o.RefreshMaxAge > 0 {
		refresh.MaxAge = int(o.RefreshMaxAge.Seconds())
	}
	return []*http.Cookie{access, refresh}
}

// ClearCookies returns deletion cookies for both halves of the pair.
func (o CookieOptions) ClearCookies() []*http.Cookie {
	return []*http.Cookie{o.ClearCookie(o.Names.Access), o.ClearCookie(o.Names.Refresh)}
}

// ClearCookie deletes a cookie by setting its expiry in the past.
func (o CookieOptions) ClearCookie(name string) *http.Cookie {
	c := o.cookie(name, "")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0).UTC()
	return c
}

// Cookie builds a cookie carrying the shared attributes.
func (o CookieOptions) Cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := o.cookie(name, value)
	c.MaxAge = int(maxAge.Seconds())
	return c
}

func (o CookieOptions) cookie(name, value string) *http.Cookie {
	path := o.Path
	if path == "" {
		path = "/"
	}
	sameSite := o.SameSite
	if sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   o.Domain,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: sameSite,
	}
}
