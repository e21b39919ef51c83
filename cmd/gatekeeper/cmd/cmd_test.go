package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/devserver"
	"github.com/courseforge/gatekeeper/internal/config"
	"github.com/courseforge/gatekeeper/internal/logging"
)

type cli struct {
	t      *testing.T
	srv    *httptest.Server
	dbPath string
	extra  []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	s, err := devserver.New(devserver.WithBcryptCost(bcrypt.MinCost), devserver.WithLogger(logging.Discard()))
	require.NoError(t, err)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	return &cli{t: t, srv: srv, dbPath: filepath.Join(t.TempDir(), "session.db")}
}

// run executes one command in a fresh command tree, as a separate process
// invocation would.
func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	base := []string{"--base-url", c.srv.URL, "--storage-path", c.dbPath, "--log-level", "error"}
	root.SetArgs(append(append(args, base...), c.extra...))
	err := root.Execute()
	return out.String(), err
}

func (c *cli) login(email string) {
	c.t.Helper()
	_, err := c.run(devserver.DefaultPassword+"\n", "login", "--email", email, "--password-stdin")
	require.NoError(c.t, err)
}

func TestLoginWhoamiLogout(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("secret\n", "login", "-e", "Admin@X.com")
	require.NoError(t, err)
	assert.Equal(t, "Logged in as Admin <admin@x.com> (admin)\n", out)

	out, err = c.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Role:        admin")

	out, err = c.run("", "whoami", "-o", "json")
	require.NoError(t, err)
	var id identity
	require.NoError(t, json.Unmarshal([]byte(out), &id))
	assert.Equal(t, "1", id.ID)
	assert.Contains(t, id.Permissions, "manage_sessions")

	out, err = c.run("", "whoami", "-o", "yaml", "--remote")
	require.NoError(t, err)
	var fromYAML identity
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Equal(t, id, fromYAML)

	out, err = c.run("", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)

	_, err = c.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)

	out, err = c.run("", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Not logged in\n", out)
}

func TestLoginInvalidCredentials(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("wrong\n", "login", "--email", "admin@x.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_credentials")
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))

	_, err = c.run("\n", "login", "--email", "")
	require.Error(t, err)
	assert.Equal(t, auth.KindMissingCredentials, auth.KindOf(err))
}

func TestRequest(t *testing.T) {
	c := newCLI(t)
	c.login("student@x.com")

	out, err := c.run("", "request", "get", "/cursos")
	require.NoError(t, err)
	var courses []devserver.Course
	require.NoError(t, json.Unmarshal([]byte(out), &courses))
	require.NotEmpty(t, courses)
	for _, course := range courses {
		assert.Equal(t, "published", course.Status)
	}

	_, err = c.run("", "request", "POST", "/admin/sessions/revoke", "--data", `{"user_id":"6"}`)
	require.Error(t, err)
	assert.Equal(t, auth.KindServerRejected, auth.KindOf(err))

	_, err = c.run("", "request", "TRACE", "/cursos")
	assert.Error(t, err)
	_, err = c.run("", "request", "POST", "/cursos", "--data", "{")
	assert.Error(t, err)
}

func TestRevokedSessionEndsLocally(t *testing.T) {
	c := newCLI(t)
	c.login("student@x.com")

	admin := &cli{t: t, srv: c.srv, dbPath: filepath.Join(t.TempDir(), "admin.db")}
	admin.login("admin@x.com")
	_, err := admin.run("", "request", "POST", "/admin/sessions/revoke", "--data", `{"user_id":"6"}`)
	require.NoError(t, err)

	_, err = c.run("", "request", "GET", "/cursos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session expired")
	assert.Equal(t, auth.KindSessionExpired, auth.KindOf(err))

	_, err = c.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestCheck(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("", "check", "/cursos")
	require.Error(t, err)
	assert.Equal(t, "denied: not authenticated (redirect to /login)\n", out)

	out, err = c.run("", "check", "/login")
	require.NoError(t, err)
	assert.Equal(t, "allowed: /login\n", out)

	c.login("student@x.com")

	for route, allowed := range map[string]bool{
		"/login":           false,
		"/dashboard":       true,
		"/cursos":          true,
		"/cursos/c-101":    true,
		"/cursos/nuevo":    false,
		"/admin/usuarios":  false,
		"/sin-restriccion": true,
	} {
		_, err := c.run("", "check", route)
		assert.Equal(t, allowed, err == nil, route)
	}

	out, err = c.run("", "check", "/admin/usuarios")
	require.Error(t, err)
	assert.Equal(t, "denied: role student not allowed (redirect to /dashboard)\n", out)

	_, err = c.run("", "check", "/reportes", "--role", "admin", "--role", "coordinator")
	assert.Error(t, err)
	_, err = c.run("", "check", "/reportes", "--role", "admin,student")
	assert.NoError(t, err)
	_, err = c.run("", "check", "/reportes", "--permission", "view_courses")
	assert.NoError(t, err)
	_, err = c.run("", "check", "/reportes", "--permission", "fly")
	assert.Error(t, err)
	_, err = c.run("", "check", "/reportes", "--role", "janitor")
	assert.Error(t, err)
}

func TestCheckRoleFallback(t *testing.T) {
	c := newCLI(t)
	c.extra = []string{"--config", filepath.Join(t.TempDir(), "gatekeeper.yaml")}
	require.NoError(t, os.WriteFile(c.extra[1], []byte("routes:\n  role_fallback: /sin-acceso\n"), 0o600))

	c.login("tutor@x.com")
	out, err := c.run("", "check", "/admin/usuarios")
	require.Error(t, err)
	assert.Equal(t, "denied: role tutor not allowed (redirect to /sin-acceso)\n", out)
}

func TestSealedStorage(t *testing.T) {
	c := newCLI(t)
	c.extra = []string{"--seal-secret", "s3cret"}
	c.login("coordinacion@x.com")

	raw, err := os.ReadFile(c.dbPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "coordinacion@x.com")

	_, err = c.run("", "whoami")
	require.NoError(t, err)

	c.extra = []string{"--seal-secret", "other"}
	_, err = c.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn, "records sealed under another secret are discarded")
}

func TestMemoryStorageDoesNotPersist(t *testing.T) {
	c := newCLI(t)
	c.extra = []string{"--storage", "memory"}
	c.login("admin@x.com")
	_, err := c.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestInvalidConfig(t *testing.T) {
	c := newCLI(t)
	c.extra = []string{"--storage", "etcd"}
	_, err := c.run("", "whoami")
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestVersion(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "gatekeeper dev\n", out.String())
}

func TestWriteIdentityUnknownFormat(t *testing.T) {
	var out bytes.Buffer
	err := writeIdentity(&out, "xml", newIdentity(auth.User{ID: "1", Role: auth.RoleStudent}))
	assert.Error(t, err)
}

func TestDevserverHandler(t *testing.T) {
	cfg := &config.Config{
		DevServer: config.DevServer{SigningKey: "k"},
		Storage:   config.Storage{SealSecret: "s"},
	}
	h, closeFn, err := newDevserverHandler(cfg, filepath.Join(t.TempDir(), "data", "sessions.db"))
	require.NoError(t, err)
	defer closeFn()

	srv := httptest.NewServer(h)
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
