package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-session-gate/client"
	"github.com/jrsteele09/go-session-gate/flowstate"
	"github.com/jrsteele09/go-session-gate/internal/config"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/provider"
	"github.com/jrsteele09/go-session-gate/provider/providerfake"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAdminUsername = "admin"

	memoryAnonKey = "memory-anon-key"
)

// NewFactory builds the client factory for the configured identity provider.
// ctx bounds background key set fetches of the JWKS verifier.
func NewFactory(ctx context.Context, cfg config.Config) (*client.Factory, error) {
	clientCfg := client.ConfigFrom(cfg)

	switch cfg.GetProviderKind() {
	case config.ProviderMemory:
		return newMemoryFactory(cfg, clientCfg)
	case config.ProviderSupabase:
	default:
		return nil, &apperrors.ConfigurationError{Setting: "AUTH_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", cfg.GetProviderKind())}
	}

	opts := []client.FactoryOption{
		client.WithHTTPClient(&http.Client{Timeout: cfg.GetProviderTimeout()}),
	}
	switch cfg.GetVerifyMode() {
	case config.VerifyJWT:
		if cfg.GetJWTSecret() == "" {
			return nil, &apperrors.ConfigurationError{Setting: "SUPABASE_JWT_SECRET", Reason: "is required when AUTH_VERIFY_MODE is jwt"}
		}
		opts = append(opts, client.WithVerifier(provider.NewJWTVerifier(cfg.GetJWTSecret())))
	case config.VerifyJWKS:
		opts = append(opts, client.WithVerifier(provider.NewJWKSVerifier(ctx, clientCfg.URL, nil)))
	}

	factory, err := client.NewFactory(clientCfg, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "[server NewFactory]")
	}
	log.Info().Str("provider", config.ProviderSupabase).Str("verify_mode", cfg.GetVerifyMode()).Str("url", clientCfg.URL).Msg("identity provider configured")
	return factory, nil
}

// newMemoryFactory runs everything against the in-memory provider, seeded
// with an admin whose password is printed once.
func newMemoryFactory(cfg config.Config, clientCfg client.Config) (*client.Factory, error) {
	if clientCfg.URL == "" {
		clientCfg.URL = providerfake.DefaultProjectURL
	}
	if clientCfg.AnonKey == "" {
		clientCfg.AnonKey = memoryAnonKey
	}
	fake := providerfake.New(providerfake.WithProjectURL(clientCfg.URL))

	email := generateEmailFromSiteURL(DefaultAdminUsername, cfg.GetSiteURL())
	password, err := bootstrapAdmin(fake, email)
	if err != nil {
		return nil, errors.Wrap(err, "[server newMemoryFactory]")
	}

	factory, err := client.NewFactory(clientCfg,
		client.WithProvider(fake),
		client.WithAdminProvider(fake),
		client.WithVerifier(fake.Verifier()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[server newMemoryFactory]")
	}

	log.Warn().Msg("using the in-memory identity provider, accounts are lost on restart")
	log.Info().Msg("👤 Admin Credentials:")
	log.Info().Msgf("   Email:       %s", email)
	log.Info().Msgf("   Password:    %s", password)
	log.Info().Msg("   ⚠️  SAVE THIS PASSWORD - it will not be displayed again!")
	return factory, nil
}

// bootstrapAdmin seeds an admin account with a generated password.
func bootstrapAdmin(p *providerfake.Provider, email string) (generatedPassword string, err error) {
	passwordBytes := make([]byte, 16)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", errors.Wrap(err, "failed to generate password")
	}
	generatedPassword = base64.RawURLEncoding.EncodeToString(passwordBytes)

	if _, err := p.AddUser(email, generatedPassword, users.RoleAdmin); err != nil {
		return "", errors.Wrap(err, "failed to create admin")
	}
	return generatedPassword, nil
}

// NewFlowRepo keeps OAuth flow state in Redis when REDIS_URL is set and in
// process memory otherwise. closeFn releases the connection.
func NewFlowRepo(ctx context.Context, cfg config.Config) (repo flowstate.Repo, closeFn func() error, err error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		log.Info().Msg("OAuth flow state kept in memory")
		return flowstate.NewInMemoryRepo(), func() error { return nil }, nil
	}
	redisRepo, err := flowstate.NewRedisRepoFromURL(ctx, redisURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[server NewFlowRepo]")
	}
	log.Info().Msg("OAuth flow state kept in Redis")
	return redisRepo, redisRepo.Close, nil
}

// generateEmailFromSiteURL creates an email address from a username and site URL
// Example: ("admin", "https://app.example.com:8443/path") -> "admin@app.example.com"
func generateEmailFromSiteURL(user, siteURL string) string {
	host := "localhost"
	if u, err := url.Parse(siteURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return fmt.Sprintf("%s@%s", user, host)
}
