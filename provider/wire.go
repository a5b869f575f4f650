package provider

import (
	"time"

	"github.com/jrsteele09/go-session-gate/internal/utils"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/users"
)

// tokenResponse is the provider's token endpoint body. It mirrors the RFC 6749
// token response with the issued user embedded.
type tokenResponse struct {
	// AccessToken is the JWT sent as Bearer to the provider and to our gate.
	AccessToken string `json:"access_token"`

	// TokenType is always "bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`

	// ExpiresAt is the absolute expiry as a unix timestamp. Preferred over
	// ExpiresIn when present since it does not drift with network latency.
	ExpiresAt int64 `json:"expires_at"`

	// RefreshToken is single use; every refresh rotates it.
	RefreshToken string `json:"refresh_token"`

	User *userResponse `json:"user"`
}

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	LastSignInAt *time.Time     `json:"last_sign_in_at"` // null until the first sign in
}

func (u *userResponse) toUser() *users.User {
	if u == nil || u.ID == "" {
		return nil
	}
	return &users.User{
		ID:           u.ID,
		Email:        u.Email,
		Roles:        users.RolesFromAppMetadata(u.AppMetadata),
		AppMetadata:  u.AppMetadata,
		Metadata:     u.UserMetadata,
		CreatedAt:    u.CreatedAt,
		LastSignInAt: utils.Value(u.LastSignInAt),
	}
}

func (t *tokenResponse) toAuthResponse(now time.Time) *AuthResponse {
	user := t.User.toUser()
	resp := &AuthResponse{User: user}
	if t.AccessToken == "" {
		return resp
	}

	expiresAt := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	if t.ExpiresAt > 0 {
		expiresAt = time.Unix(t.ExpiresAt, 0)
	}
	resp.Session = &sessions.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresAt:    expiresAt,
		User:         user,
	}
	return resp
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type pkceRequest struct {
	AuthCode     string `json:"auth_code"`
	CodeVerifier string `json:"code_verifier"`
}

type recoverRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Type      OTPType `json:"type"`
	TokenHash string  `json:"token_hash"`
}

type updateUserRequest struct {
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}
