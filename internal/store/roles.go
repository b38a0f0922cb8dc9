// ABOUTME: User roles for authorization decisions
// ABOUTME: Privileged users see user-management traffic; standard users do not

package store

import "fmt"

// Role represents the privilege level of a user
type Role string

const (
	RoleStandard   Role = "standard"
	RolePrivileged Role = "privileged"
)

// ValidRoles lists all valid roles
var ValidRoles = []Role{
	RoleStandard,
	RolePrivileged,
}

// ParseRole converts a string to a Role. An empty string yields RoleStandard.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleStandard:
		return RoleStandard, nil
	case RolePrivileged:
		return RolePrivileged, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Satisfies reports whether r grants at least the privileges of required.
func (r Role) Satisfies(required Role) bool {
	return r.rank() >= required.rank()
}

func (r Role) rank() int {
	switch r {
	case RolePrivileged:
		return 2
	case RoleStandard:
		return 1
	default:
		return 0
	}
}
