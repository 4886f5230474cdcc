package auth

import "strings"

// Role represents a console role.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleViewer, RoleOperator, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleFromUpstream maps an upstream user role to a console role.
// Unknown roles get read-only access.
func RoleFromUpstream(value string) Role {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "super_admin", "superadmin", "admin":
		return RoleAdmin
	case "operator", "dealer", "company":
		return RoleOperator
	default:
		return RoleViewer
	}
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleOperator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}
