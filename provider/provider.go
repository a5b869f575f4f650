// Package provider talks to the remote identity service that owns users,
// passwords and token issuance. Nothing in this package keeps session state.
package provider

import (
	"context"

	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/users"
)

// Provider is the set of identity service calls the session layer relies on.
// Every method is a network round-trip bounded by ctx.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error)
	SignUp(ctx context.Context, params SignUpParams) (*AuthResponse, error)
	SignOut(ctx context.Context, accessToken string) error
	RefreshSession(ctx context.Context, refreshToken string) (*AuthResponse, error)
	GetUser(ctx context.Context, accessToken string) (*users.User, error)
	UpdateUser(ctx context.Context, accessToken string, params UpdateUserParams) (*users.User, error)
	ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*AuthResponse, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error

	// VerifyOTP redeems the token_hash carried by email links (sign up
	// confirmation, password recovery) for a session.
	VerifyOTP(ctx context.Context, tokenHash string, otpType OTPType) (*AuthResponse, error)

	// AuthorizeURL builds the provider's OAuth entry point. No network call is made.
	AuthorizeURL(params OAuthParams) (string, error)
}

// AuthResponse is what the provider returns from calls that may issue a
// session. Either field may be nil, e.g. sign up awaiting email confirmation
// returns a user without a session.
type AuthResponse struct {
	Session *sessions.Session
	User    *users.User
}

// OTPType is the purpose of an emailed one-time token.
type OTPType string

const (
	OTPSignUp   OTPType = "signup"
	OTPRecovery OTPType = "recovery"
	OTPEmail    OTPType = "email"
	OTPInvite   OTPType = "invite"
)

// ParseOTPType accepts the type query parameter of an email link.
func ParseOTPType(s string) (OTPType, bool) {
	switch t := OTPType(s); t {
	case OTPSignUp, OTPRecovery, OTPEmail, OTPInvite:
		return t, true
	}
	return "", false
}

type SignUpParams struct {
	Email           string
	Password        string
	Data            map[string]any // Stored as user_metadata
	EmailRedirectTo string         // Where the confirmation link lands
}

type UpdateUserParams struct {
	Password string
	Data     map[string]any
}

type OAuthParams struct {
	Provider      string // e.g. "github", "google"
	RedirectTo    string
	CodeChallenge string // S256 PKCE challenge
	Scopes        string
}
