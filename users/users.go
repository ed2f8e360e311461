package users

import (
	"slices"

	"github.com/jrsteele09/go-auth-client/internal/utils"
)

// RoleAdmin is the role that unlocks user, role and permission management.
const RoleAdmin = "admin"

// RoleSupervisor can manage requests but not accounts.
const RoleSupervisor = "supervisor"

// Profile is the signed-in user as reported by the identity service.
type Profile struct {
	ID          string   `json:"id"`                    // Unique identifier for the user
	Name        string   `json:"name"`                  // Display name
	Email       string   `json:"email"`                 // User's email address
	Roles       []string `json:"roles,omitempty"`       // Role names granted to the user
	Permissions []string `json:"permissions,omitempty"` // Permission names granted through the roles

	roleSet       map[string]struct{}
	permissionSet map[string]struct{}
}

// NewProfile builds a Profile with its membership sets populated.
func NewProfile(id, name, email string, roles, permissions []string) *Profile {
	p := &Profile{
		ID:          id,
		Name:        name,
		Email:       email,
		Roles:       slices.Clone(roles),
		Permissions: slices.Clone(permissions),
	}
	p.index()
	return p
}

// Normalize rebuilds the membership sets after the slices were decoded.
func (p *Profile) Normalize() *Profile {
	if p == nil {
		return nil
	}
	p.index()
	return p
}

func (p *Profile) index() {
	p.roleSet = utils.ToSet(p.Roles)
	p.permissionSet = utils.ToSet(p.Permissions)
}

// HasRole is false for a nil profile.
func (p *Profile) HasRole(role string) bool {
	if p == nil {
		return false
	}
	if p.roleSet == nil {
		return slices.Contains(p.Roles, role)
	}
	_, ok := p.roleSet[role]
	return ok
}

// HasAnyRole reports whether the profile holds at least one of roles.
func (p *Profile) HasAnyRole(roles []string) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

func (p *Profile) HasPermission(permission string) bool {
	if p == nil {
		return false
	}
	if p.permissionSet == nil {
		return slices.Contains(p.Permissions, permission)
	}
	_, ok := p.permissionSet[permission]
	return ok
}

func (p *Profile) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

// Clone returns an independent copy so callers cannot mutate session state.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	return NewProfile(p.ID, p.Name, p.Email, p.Roles, p.Permissions)
}
