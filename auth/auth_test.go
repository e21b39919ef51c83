package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("superuser")
	assert.Error(t, err)

	for _, r := range AllRoles() {
		assert.True(t, r.Valid(), "role %s", r)
	}
	assert.False(t, Role("").Valid())
}

func TestRoleSet(t *testing.T) {
	s := NewRoleSet(RoleTutor, RoleAdmin)
	assert.True(t, s.Contains(RoleAdmin))
	assert.False(t, s.Contains(RoleStudent))
	assert.Equal(t, []Role{RoleAdmin, RoleTutor}, s.Roles())

	var empty RoleSet
	assert.False(t, empty.Contains(RoleAdmin))

	parsed, err := ParseRoleSet([]string{"student", "tutor"})
	require.NoError(t, err)
	assert.True(t, parsed.Contains(RoleStudent))

	_, err = ParseRoleSet([]string{"student", "janitor"})
	assert.Error(t, err)
}

func TestUserJSON(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		var u User
		require.NoError(t, json.Unmarshal([]byte(`{"id":"1","name":"Admin","email":"admin@x.com","role":"admin"}`), &u))
		assert.Equal(t, RoleAdmin, u.Role)
		assert.NoError(t, u.Validate())
	})

	t.Run("UnknownRole", func(t *testing.T) {
		var u User
		err := json.Unmarshal([]byte(`{"id":"1","name":"A","email":"a@x.com","role":"root"}`), &u)
		assert.Error(t, err)
	})

	t.Run("MissingFields", func(t *testing.T) {
		u := User{ID: "1", Role: RoleStudent}
		assert.Error(t, u.Validate())
	})

	t.Run("BadEmail", func(t *testing.T) {
		u := User{ID: "1", Name: "A", Email: "not-an-email", Role: RoleStudent}
		assert.Error(t, u.Validate())
	})
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("get /cursos: %w", &Error{Kind: KindSessionExpired, Status: 401})
	assert.True(t, errors.Is(err, ErrSessionExpired))
	assert.False(t, errors.Is(err, ErrNetworkFailure))
	assert.Equal(t, KindSessionExpired, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))

	rej := Rejected(500, "database down")
	assert.Equal(t, "database down", rej.Error())
	assert.True(t, errors.Is(rej, ErrServerRejected))

	assert.Equal(t, "server rejected request (status 409)", Rejected(409, "").Error())
}
