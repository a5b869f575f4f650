package users_test

import (
	"testing"

	"github.com/jrsteele09/go-session-gate/users"
	"github.com/stretchr/testify/require"
)

func TestRolesFromAppMetadata(t *testing.T) {
	t.Run("roles array and single role", func(t *testing.T) {
		roles := users.RolesFromAppMetadata(map[string]any{
			"roles":    []any{"admin", "editor", 42, "admin"},
			"role":     "user",
			"provider": "email",
		})
		require.Equal(t, []users.RoleType{users.RoleAdmin, users.RoleEditor, users.RoleUser}, roles)
	})

	t.Run("nothing", func(t *testing.T) {
		require.Empty(t, users.RolesFromAppMetadata(nil))
	})
}

func TestHasAnyRole(t *testing.T) {
	u := &users.User{ID: "user-1", Roles: []users.RoleType{users.RoleEditor}}

	require.True(t, u.HasAnyRole("admin", "editor"))
	require.False(t, u.HasAnyRole("admin"))
	require.False(t, u.HasAnyRole())

	var nilUser *users.User
	require.False(t, nilUser.HasAnyRole("admin"))
}

func TestPasswordHash(t *testing.T) {
	hash, err := users.HashPassword("secret1")
	require.NoError(t, err)
	require.True(t, users.CheckPasswordHash("secret1", hash))
	require.False(t, users.CheckPasswordHash("secret2", hash))
}
