package domain

import "strings"

// Role is the closed set of principal roles.
type Role string

const (
	RolePatient       Role = "patient"
	RoleDoctor        Role = "doctor"
	RoleNurse         Role = "nurse"
	RoleLabTechnician Role = "lab_technician"
	RoleAdmin         Role = "admin"
	RoleReceptionist  Role = "receptionist"
)

var roles = map[Role]struct{}{
	RolePatient:       {},
	RoleDoctor:        {},
	RoleNurse:         {},
	RoleLabTechnician: {},
	RoleAdmin:         {},
	RoleReceptionist:  {},
}

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	_, ok := roles[r]
	return r, ok
}

func (r Role) Valid() bool {
	_, ok := roles[r]
	return ok
}

// Clinical reports whether the role may act on any patient's resources.
func (r Role) Clinical() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleNurse, RoleLabTechnician:
		return true
	default:
		return false
	}
}

// Professional reports whether the role carries a license and specialization.
func (r Role) Professional() bool {
	return r == RoleDoctor || r == RoleNurse || r == RoleLabTechnician
}

func (r Role) String() string { return string(r) }
