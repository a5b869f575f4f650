package auth

import (
	"net/http"
	"net/url"
	"strings"
)

// validateCredentials rejects input the provider would reject anyway, without
// a round-trip.
func validateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return &AuthError{Message: "El email no es válido", Status: http.StatusBadRequest}
	}
	if password == "" {
		return &AuthError{Message: "La contraseña es obligatoria", Status: http.StatusBadRequest}
	}
	return nil
}

// validateOAuthProvider accepts provider names such as "github" or "azure".
func validateOAuthProvider(name string) error {
	if name == "" || strings.ContainsAny(name, " /?#&=") {
		return &AuthError{Message: MsgOAuthFailedPrefix + name, Status: http.StatusBadRequest}
	}
	return nil
}

// joinSiteURL resolves path against the site URL the provider redirects to.
func joinSiteURL(siteURL, path string) string {
	base, err := url.Parse(strings.TrimRight(siteURL, "/"))
	if err != nil || base.Scheme == "" {
		return strings.TrimRight(siteURL, "/") + path
	}
	return base.JoinPath(path).String()
}
