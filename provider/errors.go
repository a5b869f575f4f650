package provider

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
)

// Error is the identity provider's native error shape. It must not leak past
// the auth facade.
type Error struct {
	Status  int    // HTTP status returned by the provider
	Code    string // Provider error code, e.g. "invalid_credentials"
	Message string // Human readable message from the provider
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.Status, e.Message)
}

// errorResponse covers the error bodies the provider has used over time.
type errorResponse struct {
	Code             any    `json:"code"` // numeric status in newer versions, string in some
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (r errorResponse) toError(status int) *Error {
	e := &Error{Status: status, Code: r.ErrorCode}
	if e.Code == "" {
		if s, ok := r.Code.(string); ok {
			e.Code = s
		} else {
			e.Code = r.Error
		}
	}
	for _, m := range []string{r.Msg, r.Message, r.ErrorDescription, r.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// IsAuthFailure reports whether err means the credentials or tokens were
// rejected (as opposed to the provider being unreachable or overloaded).
// Auth failures invalidate a session; transport failures do not.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperrors.ErrInvalidToken) {
		return true
	}
	var pe *Error
	if errors.As(err, &pe) {
		switch {
		case pe.Status == http.StatusRequestTimeout, pe.Status == http.StatusTooManyRequests:
			return false
		case pe.Status >= 400 && pe.Status < 500:
			return true
		}
	}
	return false
}

// StatusOf returns the provider HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}
