package users_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/require"
)

func TestNilProfileHasNothing(t *testing.T) {
	var p *users.Profile
	require.False(t, p.HasRole("admin"))
	require.False(t, p.HasAnyRole([]string{"admin", "supervisor"}))
	require.False(t, p.HasPermission("users.read"))
	require.False(t, p.IsAdmin())
	require.Nil(t, p.Clone())
}

func TestPredicates(t *testing.T) {
	p := users.NewProfile("u1", "Ana", "ana@example.com",
		[]string{"supervisor"}, []string{"requests.read", "requests.update"})

	require.True(t, p.HasRole("supervisor"))
	require.False(t, p.HasRole("admin"))
	require.False(t, p.IsAdmin())
	require.True(t, p.HasAnyRole([]string{"admin", "supervisor"}))
	require.False(t, p.HasAnyRole(nil))
	require.True(t, p.HasPermission("requests.update"))
	require.False(t, p.HasPermission("users.delete"))
}

func TestDecodedProfile(t *testing.T) {
	var p users.Profile
	require.NoError(t, json.Unmarshal([]byte(`{"id":"u1","name":"Ana","email":"a@x","roles":["admin"],"permissions":["users.read"]}`), &p))

	require.True(t, p.HasRole("admin"))
	require.True(t, p.Normalize().HasPermission("users.read"))
	require.Equal(t, "Ana", p.Name)
}

func TestCloneIsIndependent(t *testing.T) {
	p := users.NewProfile("u1", "Ana", "a@x", []string{"admin"}, nil)
	c := p.Clone()
	c.Roles[0] = "viewer"

	require.True(t, p.HasRole("admin"))
	require.Equal(t, "admin", p.Roles[0])
}
