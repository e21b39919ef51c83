// Package rbac provides role-based access control checks.
//
// Every decision goes through HasRole, so the convenience predicates and the
// permission matrix can never disagree with a direct membership test.
package rbac

import (
	"fmt"
	"strings"

	"github.com/courseforge/gatekeeper/auth"
)

// HasRole reports whether user holds one of the allowed roles. An absent
// user holds none.
func HasRole(user *auth.User, allowed auth.RoleSet) bool {
	if user == nil {
		return false
	}
	return allowed.Contains(user.Role)
}

var (
	adminRoles          = auth.NewRoleSet(auth.RoleAdmin)
	coordinatorRoles    = auth.NewRoleSet(auth.RoleCoordinator, auth.RoleAcademicCoordinator, auth.RoleProductionCoordinator)
	contentCreatorRoles = auth.NewRoleSet(auth.RoleContentCreator, auth.RoleInstructionalDesigner, auth.RoleContentReviewer)
	tutorRoles          = auth.NewRoleSet(auth.RoleTutor)
	productionRoles     = auth.NewRoleSet(auth.RoleProductionStaff, auth.RoleAudiovisualProducer, auth.RoleGraphicDesigner)
	studentRoles        = auth.NewRoleSet(auth.RoleStudent)
)

func IsAdmin(user *auth.User) bool { return HasRole(user, adminRoles) }

// IsCoordinator matches every coordinator role, academic and production included.
func IsCoordinator(user *auth.User) bool { return HasRole(user, coordinatorRoles) }

// IsContentCreator matches content creators, instructional designers and reviewers.
func IsContentCreator(user *auth.User) bool { return HasRole(user, contentCreatorRoles) }

func IsTutor(user *auth.User) bool { return HasRole(user, tutorRoles) }

// IsProductionStaff matches production staff, audiovisual producers and graphic designers.
func IsProductionStaff(user *auth.User) bool { return HasRole(user, productionRoles) }

func IsStudent(user *auth.User) bool { return HasRole(user, studentRoles) }

// Permission names an action on a dashboard resource.
type Permission int

const (
	PermViewCourses Permission = iota + 1
	PermManageCourses
	PermViewMicrocourses
	PermManageMicrocourses
	PermViewTeams
	PermManageTeams
	PermViewEbooks
	PermManageEbooks
	PermManageEmailSettings
	PermManageSessions
)

var permNames = map[Permission]string{
	PermViewCourses:         "view_courses",
	PermManageCourses:       "manage_courses",
	PermViewMicrocourses:    "view_microcourses",
	PermManageMicrocourses:  "manage_microcourses",
	PermViewTeams:           "view_teams",
	PermManageTeams:         "manage_teams",
	PermViewEbooks:          "view_ebooks",
	PermManageEbooks:        "manage_ebooks",
	PermManageEmailSettings: "manage_email_settings",
	PermManageSessions:      "manage_sessions",
}

func (p Permission) String() string {
	if n, ok := permNames[p]; ok {
		return n
	}
	return "unknown"
}

// ParsePermission converts a name such as "manage_courses" to a Permission.
func ParsePermission(s string) (Permission, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, n := range permNames {
		if n == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown permission %q", s)
}

// AllPermissions returns every permission in declaration order.
func AllPermissions() []Permission {
	out := make([]Permission, 0, len(permNames))
	for p := PermViewCourses; p <= PermManageSessions; p++ {
		out = append(out, p)
	}
	return out
}

func union(sets ...auth.RoleSet) auth.RoleSet {
	out := auth.RoleSet{}
	for _, s := range sets {
		for r := range s {
			out[r] = struct{}{}
		}
	}
	return out
}

// permissionMatrix maps each permission to the roles allowed to exercise it.
var permissionMatrix = map[Permission]auth.RoleSet{
	PermViewCourses:         union(adminRoles, coordinatorRoles, contentCreatorRoles, tutorRoles, studentRoles),
	PermManageCourses:       auth.NewRoleSet(auth.RoleAdmin, auth.RoleCoordinator, auth.RoleAcademicCoordinator, auth.RoleContentCreator, auth.RoleInstructionalDesigner),
	PermViewMicrocourses:    union(adminRoles, coordinatorRoles, contentCreatorRoles, productionRoles),
	PermManageMicrocourses:  auth.NewRoleSet(auth.RoleAdmin, auth.RoleCoordinator, auth.RoleProductionCoordinator, auth.RoleContentCreator, auth.RoleInstructionalDesigner),
	PermViewTeams:           union(adminRoles, coordinatorRoles),
	PermManageTeams:         auth.NewRoleSet(auth.RoleAdmin, auth.RoleCoordinator),
	PermViewEbooks:          union(adminRoles, coordinatorRoles, contentCreatorRoles, tutorRoles, studentRoles, auth.NewRoleSet(auth.RoleGraphicDesigner)),
	PermManageEbooks:        auth.NewRoleSet(auth.RoleAdmin, auth.RoleProductionCoordinator, auth.RoleContentCreator, auth.RoleGraphicDesigner),
	PermManageEmailSettings: adminRoles,
	PermManageSessions:      adminRoles,
}

// RolesFor returns a copy of the roles allowed to exercise perm.
func RolesFor(perm Permission) auth.RoleSet {
	return union(permissionMatrix[perm])
}

// Can reports whether user may exercise perm.
func Can(user *auth.User, perm Permission) bool {
	return HasRole(user, permissionMatrix[perm])
}

// Require returns a denial message if user lacks perm, or "" if allowed.
func Require(user *auth.User, perm Permission) string {
	if Can(user, perm) {
		return ""
	}
	return "permission denied: " + perm.String()
}
