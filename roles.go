package accounts

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is the default role for registered accounts
	RoleUser UserRole = "user"
	// RoleAdmin grants access to the administrative surface
	RoleAdmin UserRole = "admin"
)

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}
