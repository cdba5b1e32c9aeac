package models

import "strings"

// Role is the caller's privilege level, assigned at authentication time.
type Role string

const (
	RoleGuest        Role = "guest"
	RoleSurgicalTeam Role = "surgical-team"
	RoleAdmin        Role = "admin"
)

var roleRank = map[Role]int{
	RoleGuest:        0,
	RoleSurgicalTeam: 1,
	RoleAdmin:        2,
}

// ParseRole normalises a raw role string. Anything unrecognised is a guest.
func ParseRole(raw string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := roleRank[role]; ok {
		return role
	}
	return RoleGuest
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank returns the position of r in the privilege order Guest < SurgicalTeam < Admin.
// Unknown roles rank as guests.
func (r Role) Rank() int {
	return roleRank[r]
}

// AtLeast reports whether r meets the required minimum privilege.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() >= min.Rank()
}

// CanSearchByName reports whether r may look patients up by name.
func (r Role) CanSearchByName() bool {
	return r.AtLeast(RoleAdmin)
}

// CanSeeIdentity reports whether patient names may be disclosed to r.
func (r Role) CanSeeIdentity() bool {
	return r.AtLeast(RoleAdmin)
}
