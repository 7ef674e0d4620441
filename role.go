package learnauth

import (
	"fmt"
	"strings"
)

// Role is the closed set of platform roles. The zero value is RoleStudent.
//
// Roles form a total order: every capability granted to a role is granted to
// all higher roles, so an ADMIN passes any gate and a STUDENT requirement is
// satisfied by any authenticated principal.
type Role uint8

const (
	// RoleStudent is the default role for new accounts.
	RoleStudent Role = iota
	// RoleInstructor can manage its own courses and lessons.
	RoleInstructor
	// RoleAdmin can manage the whole platform.
	RoleAdmin
)

var roleNames = [...]string{"STUDENT", "INSTRUCTOR", "ADMIN"}

func (r Role) String() string {
	if int(r) >= len(roleNames) {
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
	return roleNames[r]
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return int(r) < len(roleNames)
}

// Allows reports whether a principal holding r satisfies a gate requiring
// required. Comparison is by ordering, never by name.
func (r Role) Allows(required Role) bool {
	return r.Valid() && required.Valid() && r >= required
}

// ParseRole maps a stored role name to a Role. Matching is case-insensitive
// to tolerate legacy rows.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STUDENT":
		return RoleStudent, nil
	case "INSTRUCTOR":
		return RoleInstructor, nil
	case "ADMIN":
		return RoleAdmin, nil
	default:
		return RoleStudent, fmt.Errorf("unknown role %q", s)
	}
}
