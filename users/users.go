package users

import (
	"time"

	"github.com/jrsteele09/go-session-gate/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// RoleType is a role claim carried in the user's app metadata
type RoleType string

const (
	RoleAdmin  RoleType = "admin"  // Full access to administrative routes
	RoleEditor RoleType = "editor" // Can modify content
	RoleUser   RoleType = "user"   // Regular signed-in user
)

// User is the identity provider's view of a user. This layer never mutates it.
type User struct {
	ID           string         `json:"id"`                      // Unique identifier issued by the provider
	Email        string         `json:"email"`                   // User's email address
	Roles        []RoleType     `json:"roles,omitempty"`         // Role claims from app_metadata
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`  // Provider controlled metadata
	Metadata     map[string]any `json:"user_metadata,omitempty"` // User supplied metadata (sign up data)
	CreatedAt    time.Time      `json:"created_at,omitempty"`
	LastSignInAt time.Time      `json:"last_sign_in_at,omitempty"`
}

// RolesFromAppMetadata collects role claims from app_metadata. Both the
// "roles" array and the single "role" string are honoured.
func RolesFromAppMetadata(appMetadata map[string]any) []RoleType {
	var roles []RoleType
	seen := make(map[RoleType]struct{})
	add := func(v any) {
		s, ok := v.(string)
		if !ok || s == "" {
			return
		}
		role := RoleType(s)
		if _, dup := seen[role]; dup {
			return
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}

	switch v := appMetadata["roles"].(type) {
	case []any:
		for _, r := range utils.ToStringSlice(v) {
			add(r)
		}
	case []string:
		for _, r := range v {
			add(r)
		}
	}
	add(appMetadata["role"])
	return roles
}

// HasRole checks if the user carries a specific role claim
func (u *User) HasRole(role RoleType) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether at least one of required is held by the user.
func (u *User) HasAnyRole(required ...string) bool {
	for _, role := range required {
		if u.HasRole(RoleType(role)) {
			return true
		}
	}
	return false
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
