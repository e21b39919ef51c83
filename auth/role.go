package auth

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Role is a closed enumeration of the roles the backend can assign.
// The session layer never interprets a role beyond equality and membership.
type Role string

const (
	RoleAdmin                 Role = "admin"
	RoleCoordinator           Role = "coordinator"
	RoleAcademicCoordinator   Role = "academic_coordinator"
	RoleProductionCoordinator Role = "production_coordinator"
	RoleContentCreator        Role = "content_creator"
	RoleInstructionalDesigner Role = "instructional_designer"
	RoleContentReviewer       Role = "content_reviewer"
	RoleTutor                 Role = "tutor"
	RoleProductionStaff       Role = "production_staff"
	RoleAudiovisualProducer   Role = "audiovisual_producer"
	RoleGraphicDesigner       Role = "graphic_designer"
	RoleStudent               Role = "student"
)

var allRoles = []Role{
	RoleAdmin,
	RoleCoordinator,
	RoleAcademicCoordinator,
	RoleProductionCoordinator,
	RoleContentCreator,
	RoleInstructionalDesigner,
	RoleContentReviewer,
	RoleTutor,
	RoleProductionStaff,
	RoleAudiovisualProducer,
	RoleGraphicDesigner,
	RoleStudent,
}

// AllRoles returns every known role in declaration order.
func AllRoles() []Role {
	return slices.Clone(allRoles)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return slices.Contains(allRoles, r)
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts s to a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// UnmarshalJSON rejects roles outside the enumeration so that a snapshot
// carrying an unknown role never parses as a valid User.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleSet is an unordered set of roles.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// Contains reports whether r is a member of the set. A nil set contains nothing.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// Roles returns the members sorted by name.
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// ParseRoleSet parses a list of role names, e.g. from a CLI flag.
func ParseRoleSet(names []string) (RoleSet, error) {
	s := make(RoleSet, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		s[r] = struct{}{}
	}
	return s, nil
}
