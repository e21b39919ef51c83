package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/gatekeeper/auth"
)

func userWith(role auth.Role) *auth.User {
	return &auth.User{ID: "1", Name: "U", Email: "u@x.com", Role: role}
}

func TestHasRole(t *testing.T) {
	admins := auth.NewRoleSet(auth.RoleAdmin)
	assert.True(t, HasRole(userWith(auth.RoleAdmin), admins))
	assert.False(t, HasRole(userWith(auth.RoleStudent), admins))
	assert.False(t, HasRole(nil, admins))
	assert.False(t, HasRole(userWith(auth.RoleAdmin), nil))
	assert.False(t, HasRole(userWith(auth.RoleAdmin), auth.RoleSet{}))
}

func TestPredicatesAgreeWithHasRole(t *testing.T) {
	predicates := map[string]struct {
		fn  func(*auth.User) bool
		set auth.RoleSet
	}{
		"admin":       {IsAdmin, adminRoles},
		"coordinator": {IsCoordinator, coordinatorRoles},
		"content":     {IsContentCreator, contentCreatorRoles},
		"tutor":       {IsTutor, tutorRoles},
		"production":  {IsProductionStaff, productionRoles},
		"student":     {IsStudent, studentRoles},
	}
	for name, p := range predicates {
		assert.False(t, p.fn(nil), name)
		for _, r := range auth.AllRoles() {
			u := userWith(r)
			assert.Equal(t, HasRole(u, p.set), p.fn(u), "%s/%s", name, r)
		}
	}
}

func TestPredicateExamples(t *testing.T) {
	assert.True(t, IsAdmin(userWith(auth.RoleAdmin)))
	assert.False(t, IsAdmin(userWith(auth.RoleCoordinator)))
	assert.True(t, IsCoordinator(userWith(auth.RoleAcademicCoordinator)))
	assert.True(t, IsContentCreator(userWith(auth.RoleInstructionalDesigner)))
	assert.True(t, IsProductionStaff(userWith(auth.RoleGraphicDesigner)))
	assert.False(t, IsStudent(userWith(auth.RoleTutor)))
}

func TestEveryRoleHasAFamily(t *testing.T) {
	for _, r := range auth.AllRoles() {
		u := userWith(r)
		n := 0
		for _, fn := range []func(*auth.User) bool{IsAdmin, IsCoordinator, IsContentCreator, IsTutor, IsProductionStaff, IsStudent} {
			if fn(u) {
				n++
			}
		}
		assert.Equal(t, 1, n, "role %s", r)
	}
}

func TestCan(t *testing.T) {
	for _, p := range AllPermissions() {
		assert.True(t, Can(userWith(auth.RoleAdmin), p), "admin may %s", p)
		assert.False(t, Can(nil, p))
	}

	student := userWith(auth.RoleStudent)
	assert.True(t, Can(student, PermViewCourses))
	assert.False(t, Can(student, PermManageCourses))
	assert.False(t, Can(student, PermViewTeams))

	assert.True(t, Can(userWith(auth.RoleGraphicDesigner), PermManageEbooks))
	assert.False(t, Can(userWith(auth.RoleCoordinator), PermManageEmailSettings))
	assert.False(t, Can(userWith(auth.RoleAdmin), Permission(0)))
}

func TestRolesForIsACopy(t *testing.T) {
	rs := RolesFor(PermManageEmailSettings)
	rs[auth.RoleStudent] = struct{}{}
	assert.False(t, Can(userWith(auth.RoleStudent), PermManageEmailSettings))
}

func TestParsePermission(t *testing.T) {
	for _, p := range AllPermissions() {
		got, err := ParsePermission(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePermission("fly")
	assert.Error(t, err)
	assert.Equal(t, "unknown", Permission(99).String())
}

func TestRequire(t *testing.T) {
	assert.Empty(t, Require(userWith(auth.RoleAdmin), PermManageTeams))
	assert.Equal(t, "permission denied: manage_teams", Require(userWith(auth.RoleTutor), PermManageTeams))
}
