package config

import (
	"strings"
	"time"
)

// Verification modes for access tokens carried in the session cookies.
const (
	VerifyRemote = "remote" // GET /auth/v1/user on every verification
	VerifyJWT    = "jwt"    // HS256 with the project JWT secret
	VerifyJWKS   = "jwks"   // asymmetric keys from the project's JWKS endpoint
)

// Identity provider backends.
const (
	ProviderSupabase = "supabase"
	ProviderMemory   = "memory"
)

type ProviderConfig interface {
	GetProviderURL() string
	GetAnonKey() string
	GetServiceRoleKey() string
	GetJWTSecret() string
	GetVerifyMode() string
	GetProviderKind() string
	GetProviderTimeout() time.Duration
}

type Provider struct{}

var _ ProviderConfig = Provider{}

func (Provider) GetProviderURL() string {
	return strings.TrimRight(GetEnv("SUPABASE_URL", GetEnv("NEXT_PUBLIC_SUPABASE_URL", "")), "/")
}

func (Provider) GetAnonKey() string {
	return GetEnv("SUPABASE_ANON_KEY", GetEnv("NEXT_PUBLIC_SUPABASE_ANON_KEY", ""))
}

// GetServiceRoleKey is the privileged key. It is only ever used server side.
func (Provider) GetServiceRoleKey() string {
	return GetEnv("SUPABASE_SERVICE_ROLE_KEY", "")
}

func (Provider) GetJWTSecret() string {
	return GetEnv("SUPABASE_JWT_SECRET", "")
}

func (p Provider) GetVerifyMode() string {
	defaultMode := VerifyRemote
	if p.GetJWTSecret() != "" {
		defaultMode = VerifyJWT
	}
	switch mode := strings.ToLower(GetEnv("AUTH_VERIFY_MODE", defaultMode)); mode {
	case VerifyRemote, VerifyJWT, VerifyJWKS:
		return mode
	default:
		return defaultMode
	}
}

func (Provider) GetProviderKind() string {
	return strings.ToLower(GetEnv("AUTH_PROVIDER", ProviderSupabase))
}

func (Provider) GetProviderTimeout() time.Duration {
	return GetEnvDuration("AUTH_PROVIDER_TIMEOUT", 10*time.Second)
}
