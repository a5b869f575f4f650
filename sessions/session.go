package sessions

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-gate/users"
	"golang.org/x/oauth2"
)

// Session is the authenticated identity bound to one request or one browser
// context: the provider's token pair plus the user it was issued to.
// A Session is either complete or treated as absent.
type Session struct {
	AccessToken  string      `json:"access_token"`  // Short-lived JWT sent as Bearer to the provider
	RefreshToken string      `json:"refresh_token"` // Opaque, single-use token that renews the pair
	TokenType    string      `json:"token_type"`    // Always "bearer" for the identity provider
	ExpiresAt    time.Time   `json:"expires_at"`    // Access token expiry
	User         *users.User `json:"user"`          // Identity the tokens were issued to
}

// Complete reports whether every field of the session is populated.
func (s *Session) Complete() bool {
	return s.HasTokens() && !s.ExpiresAt.IsZero() && s.User != nil && s.User.ID != ""
}

// HasTokens reports whether both halves of the token pair are present.
func (s *Session) HasTokens() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != ""
}

// ExpiresWithin reports whether the access token expires before now+window.
func (s *Session) ExpiresWithin(now time.Time, window time.Duration) bool {
	return !s.ExpiresAt.After(now.Add(window))
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// WithUser returns a copy of the session bound to u.
func (s *Session) WithUser(u *users.User) *Session {
	cp := *s
	cp.User = u
	return &cp
}

// Token exposes the pair as an oauth2 token, e.g. for oauth2.StaticTokenSource.
func (s *Session) Token() *oauth2.Token {
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    tokenType,
		RefreshToken: s.RefreshToken,
		Expiry:       s.ExpiresAt,
	}
}

// String redacts the tokens so a session can be logged safely.
func (s *Session) String() string {
	if s == nil {
		return "<nil>"
	}
	userID := ""
	if s.User != nil {
		userID = s.User.ID
	}
	return fmt.Sprintf("Session{User:%q ExpiresAt:%s}", userID, s.ExpiresAt.Format(time.RFC3339))
}

// AccessTokenExpiry reads the exp claim of an access token without verifying
// its signature. Verification is the provider's (or the verifier's) job.
func AccessTokenExpiry(accessToken string) (time.Time, error) {
	if strings.TrimSpace(accessToken) == "" {
		return time.Time{}, fmt.Errorf("[sessions AccessTokenExpiry] empty access token")
	}
	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("[sessions AccessTokenExpiry] parse: %w", err)
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("[sessions AccessTokenExpiry] missing exp claim")
	}
	return exp.Time, nil
}
