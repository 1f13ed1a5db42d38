// Package model defines the core domain types for caserelay.
package model

import "errors"

// ErrUnknownRole is returned when a registration names a role outside
// officer, victim and admin.
var ErrUnknownRole = errors.New("unknown user type: must be officer, victim, or admin")

// Role is the participant category a session registers under.
// It is fixed for the lifetime of a session.
type Role string

const (
	RoleOfficer Role = "officer" // field officers, receive victim and admin traffic
	RoleVictim  Role = "victim"  // victims, the only role with queued delivery
	RoleAdmin   Role = "admin"   // administrators, receive officer reports and case notifications
)

// Roles lists every valid role in a stable order.
var Roles = []Role{RoleOfficer, RoleVictim, RoleAdmin}

func (r Role) String() string {
	return string(r)
}

// Valid returns true if the role is one of officer, victim or admin.
func (r Role) Valid() bool {
	switch r {
	case RoleOfficer, RoleVictim, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole converts a wire user type to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", ErrUnknownRole
	}
	return r, nil
}
