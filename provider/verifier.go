package provider

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/pkg/errors"
)

// TokenVerifier turns an access token into the user it was issued to.
// A rejected token yields an error matching ErrInvalidToken.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (*users.User, error)
}

// accessClaims are the claims the provider puts in its access tokens.
type accessClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	Role         string         `json:"role"` // Postgres role, e.g. "authenticated"; not an application role
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (c *accessClaims) toUser(subject string) *users.User {
	return &users.User{
		ID:          subject,
		Email:       c.Email,
		Roles:       users.RolesFromAppMetadata(c.AppMetadata),
		AppMetadata: c.AppMetadata,
		Metadata:    c.UserMetadata,
	}
}

// RemoteVerifier asks the provider who owns the token. Every call is a
// network round-trip but revocations are seen immediately.
type RemoteVerifier struct {
	provider Provider
}

func NewRemoteVerifier(p Provider) *RemoteVerifier {
	return &RemoteVerifier{provider: p}
}

func (v *RemoteVerifier) Verify(ctx context.Context, accessToken string) (*users.User, error) {
	u, err := v.provider.GetUser(ctx, accessToken)
	if err != nil {
		if IsAuthFailure(err) {
			return nil, errors.Wrap(apperrors.ErrInvalidToken, err.Error())
		}
		return nil, err
	}
	return u, nil
}

// JWTVerifier checks HS256 access tokens locally with the project's JWT secret.
type JWTVerifier struct {
	secret  []byte
	nowFunc func() time.Time
}

type JWTVerifierOption func(*JWTVerifier)

func WithVerifierClock(now func() time.Time) JWTVerifierOption {
	return func(v *JWTVerifier) {
		if now != nil {
			v.nowFunc = now
		}
	}
}

func NewJWTVerifier(secret string, opts ...JWTVerifierOption) *JWTVerifier {
	v := &JWTVerifier{secret: []byte(secret), nowFunc: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *JWTVerifier) Verify(_ context.Context, accessToken string) (*users.User, error) {
	if accessToken == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "empty access token")
	}

	var claims accessClaims
	_, err := jwt.ParseWithClaims(accessToken, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.nowFunc),
	)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, err.Error())
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "token has no subject")
	}
	return claims.toUser(claims.Subject), nil
}

// JWKSVerifier checks asymmetrically signed access tokens against the
// project's published key set at <project url>/auth/v1/.well-known/jwks.json.
type JWKSVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewJWKSVerifier builds a verifier for the project at projectURL. ctx scopes
// key set fetches and may carry an HTTP client via oidc.ClientContext, so it
// should outlive the verifier.
func NewJWKSVerifier(ctx context.Context, projectURL string, now func() time.Time) *JWKSVerifier {
	issuer := strings.TrimRight(projectURL, "/") + authPath
	keySet := oidc.NewRemoteKeySet(ctx, issuer+"/.well-known/jwks.json")
	cfg := &oidc.Config{
		SkipClientIDCheck:    true,
		SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
		Now:                  now,
	}
	return &JWKSVerifier{verifier: oidc.NewVerifier(issuer, keySet, cfg)}
}

func (v *JWKSVerifier) Verify(ctx context.Context, accessToken string) (*users.User, error) {
	tok, err := v.verifier.Verify(ctx, accessToken)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, err.Error())
	}
	var claims accessClaims
	if err := tok.Claims(&claims); err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, err.Error())
	}
	return claims.toUser(tok.Subject), nil
}
