package auth

import (
	"net/http"

	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/provider"
	"github.com/pkg/errors"
)

// Fallback messages, shown when the provider gives none.
const (
	MsgSignInFailed         = "Error de autenticación"
	MsgSignUpFailed         = "Error de registro"
	MsgSignOutFailed        = "Error al cerrar sesión"
	MsgResetFailed          = "Error al restablecer contraseña"
	MsgUpdatePasswordFailed = "Error al actualizar la contraseña"
	MsgOAuthFailedPrefix    = "Error al iniciar sesión con "
	MsgVerifyFailed         = "Error al verificar el enlace"

	MsgIncompleteSignIn = "Datos de autenticación incompletos"
	MsgIncompleteSignUp = "Registro incompleto"
	MsgSessionMissing   = "Auth session missing!"
	MsgFlowNotFound     = "La sesión de inicio ha caducado, inténtalo de nuevo"
)

// AuthError is the only error shape the auth service returns. Status is the
// provider's HTTP status, or 0 when there is none.
type AuthError struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	cause   error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.cause
}

// HTTPStatus is the status to answer a client with: the provider's 4xx when
// there is one, 400 otherwise.
func (e *AuthError) HTTPStatus() int {
	if e.Status >= 400 && e.Status < 500 {
		return e.Status
	}
	return http.StatusBadRequest
}

// newAuthError converts any failure into an AuthError. The provider's own
// message is kept; anything else, such as a transport error, gets fallback so
// internals never reach the user.
func newAuthError(err error, fallback string) error {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}

	var pe *provider.Error
	if errors.As(err, &pe) {
		// The provider's error stays behind this boundary; only its status
		// and message cross it.
		authErr := &AuthError{Message: fallback, Status: pe.Status}
		if pe.Message != "" {
			authErr.Message = pe.Message
		}
		return authErr
	}
	return &AuthError{Message: fallback, cause: err}
}

func incompleteError(message string) error {
	return &AuthError{Message: message, cause: apperrors.ErrIncompleteCredentials}
}

func sessionMissingError() error {
	return &AuthError{Message: MsgSessionMissing, Status: http.StatusBadRequest, cause: apperrors.ErrSessionMissing}
}
