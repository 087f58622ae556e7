package domain

// Role is the closed set of roles an Identity can hold. The wire and storage
// format is the lowercase literal.
type Role string

const (
	// RoleNone is what any unrecognised value decodes to. It is never granted access.
	RoleNone    Role = ""
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:   {},
	RoleManager: {},
	RoleMember:  {},
}

// ParseRole decodes a wire or storage value. Matching is exact: "Admin" or
// " admin" are not roles.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	if _, ok := knownRoles[r]; !ok {
		return RoleNone, false
	}
	return r, true
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// Roles lists every known role, most privileged first.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleMember}
}
