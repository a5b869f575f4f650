package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-session-gate/auth"
	"github.com/jrsteele09/go-session-gate/guard"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// flowCookieName carries the OAuth flow ID from the redirect to the callback.
func (s *Server) flowCookieName() string {
	return s.config.GetCookiePrefix() + "-auth-flow"
}

func (s *Server) setFlowCookie(w http.ResponseWriter, flowID string) {
	http.SetCookie(w, s.factory.Config().Cookies.Cookie(s.flowCookieName(), flowID, s.config.GetFlowTTL()))
}

func (s *Server) clearFlowCookie(w http.ResponseWriter) {
	http.SetCookie(w, s.factory.Config().Cookies.ClearCookie(s.flowCookieName()))
}

// safeRedirect keeps redirect targets on this site. Anything that is not a
// plain absolute path falls back.
func safeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return fallback
	}
	return target
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	fullPath := path + "?error=" + url.QueryEscape(errorMsg)

	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", fullPath)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, fullPath, http.StatusSeeOther)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "[server decodeJSON]")
	}
	return nil
}

// writeAuthError answers with the status and message of an *auth.AuthError.
// Anything else is a 500 with a generic body.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("auth handler failed")
		guard.WriteJSON(w, http.StatusInternalServerError, guard.ErrorResponse{
			Error:   "Error interno",
			Message: "Se ha producido un error inesperado",
		})
		return
	}
	guard.WriteJSON(w, authErr.HTTPStatus(), guard.ErrorResponse{
		Error:   authErr.Message,
		Message: authErr.Message,
	})
}

func badRequest(w http.ResponseWriter, message string) {
	guard.WriteJSON(w, http.StatusBadRequest, guard.ErrorResponse{Error: "Solicitud no válida", Message: message})
}
