package model

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// RoleSet is a membership set used by route guards.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// Has reports whether r belongs to the set.
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

var (
	// AdminTier may manage ordinary accounts.
	AdminTier = NewRoleSet(RoleAdmin, RoleSuperAdmin)
	// SuperAdminOnly may change roles.
	SuperAdminOnly = NewRoleSet(RoleSuperAdmin)
	// AnyRole accepts every authenticated caller.
	AnyRole = NewRoleSet(RoleUser, RoleAdmin, RoleSuperAdmin)
)

// ParseRole maps a client supplied string onto a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is a member of the closed set.
func (r Role) Valid() bool {
	return AnyRole.Has(r)
}

func (r Role) String() string { return string(r) }
