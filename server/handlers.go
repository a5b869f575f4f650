package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-gate/guard"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/users"
)

type credentialsRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// SessionResponse is the public view of a session. Tokens stay in cookies.
type SessionResponse struct {
	User      *users.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func newSessionResponse(s *sessions.Session) SessionResponse {
	return SessionResponse{User: s.User, ExpiresAt: s.ExpiresAt}
}

func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "El cuerpo de la solicitud no es válido")
			return
		}
		svc, err := s.authService(w, r)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		session, err := svc.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		guard.WriteJSON(w, http.StatusOK, newSessionResponse(session))
	}
}

func (s *Server) SignUpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "El cuerpo de la solicitud no es válido")
			return
		}
		svc, err := s.authService(w, r)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		session, err := svc.SignUp(r.Context(), req.Email, req.Password, req.Metadata)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		guard.WriteJSON(w, http.StatusCreated, newSessionResponse(session))
	}
}

// SignOutHandler always clears the cookies. A provider failure is still
// reported so the client can tell the user.
func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, err := s.authService(w, r)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		if err := svc.SignOut(r.Context()); err != nil {
			writeAuthError(w, r, err)
			return
		}
		guard.WriteJSON(w, http.StatusOK, statusResponse{Status: "signed_out"})
	}
}

func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "El cuerpo de la solicitud no es válido")
			return
		}
		svc, err := s.authService(w, r)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		if err := svc.ResetPassword(r.Context(), req.Email); err != nil {
			writeAuthError(w, r, err)
			return
		}
		guard.WriteJSON(w, http.StatusOK, statusResponse{Status: "email_sent"})
	}
}

func (s *Server) UpdatePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req passwordRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "El cuerpo de la solicitud no es válido")
			return
		}
		svc, err := s.authService(w, r)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		session, err := svc.UpdatePassword(r.Context(), req.Password)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		guard.WriteJSON(w, http.StatusOK, newSessionResponse(session))
	}
}

func (s *Server) SessionHandler() guard.SessionHandler {
	return func(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
		guard.WriteJSON(w, http.StatusOK, newSessionResponse(session))
	}
}

func (s *Server) DashboardHandler() guard.SessionHandler {
	return func(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Hola, " + session.User.Email + "\n"))
	}
}

// ResetPasswordPageHandler is where confirmed recovery links land. The
// recovery session is already in the Cookie Pair, so the new password is
// posted to the update password route.
func (s *Server) ResetPasswordPageHandler() guard.SessionHandler {
	return func(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Elige una nueva contraseña para " + session.User.Email + " en POST " + RouteUpdatePassword + "\n"))
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guard.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}
