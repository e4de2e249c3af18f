package auth

// AccountRole is the account's role
type AccountRole string

const (
	// RoleUser is a regular trading platform user
	RoleUser AccountRole = "user"
	// RoleAdmin can manage account lifecycles and read the audit log
	RoleAdmin AccountRole = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r AccountRole) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role grants access to admin operations
func (r AccountRole) IsAdmin() bool {
	return r == RoleAdmin
}

func (r AccountRole) String() string {
	return string(r)
}

// ParseRole returns the matching role, or false for unknown values
func ParseRole(s string) (AccountRole, bool) {
	r := AccountRole(s)
	return r, r.IsValid()
}
