package lifecycle

import "strings"

// Role is a role name carried by an Identity.
type Role string

const (
	// RoleGuest can only view
	RoleGuest Role = "guest"
	// RoleMember is a regular account
	RoleMember Role = "member"
	// RoleAdmin unlocks the admin area
	RoleAdmin Role = "admin"
	// RoleOwner is above admin
	RoleOwner Role = "owner"
)

var roleHierarchy = map[Role]int{
	RoleGuest:  0,
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// ParseRole normalizes a role string and reports whether it is known.
func ParseRole(roleStr string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleGuest,
		RoleMember,
		RoleAdmin,
		RoleOwner,
	}
}
