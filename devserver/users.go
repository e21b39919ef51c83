package devserver

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/internal/util"
	"github.com/courseforge/gatekeeper/internal/uuid"
)

var ErrUnknownUser = errors.New("unknown user")

// SeedUser is an account created when the server starts.
type SeedUser struct {
	User     auth.User
	Password string
}

// DefaultPassword is the password of every default seed user.
const DefaultPassword = "secret"

// DefaultUsers returns one account per role family, all with DefaultPassword.
func DefaultUsers() []SeedUser {
	mk := func(id, name, email string, role auth.Role) SeedUser {
		return SeedUser{User: auth.User{ID: id, Name: name, Email: email, Role: role}, Password: DefaultPassword}
	}
	return []SeedUser{
		mk("1", "Admin", "admin@x.com", auth.RoleAdmin),
		mk("2", "Coordinadora Académica", "coordinacion@x.com", auth.RoleAcademicCoordinator),
		mk("3", "Diseñador Instruccional", "diseno@x.com", auth.RoleInstructionalDesigner),
		mk("4", "Tutora", "tutor@x.com", auth.RoleTutor),
		mk("5", "Productor Audiovisual", "produccion@x.com", auth.RoleAudiovisualProducer),
		mk("6", "Estudiante", "student@x.com", auth.RoleStudent),
	}
}

type account struct {
	user auth.User
	hash []byte
}

// userDirectory holds accounts keyed by normalized email.
type userDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]account
	byID    map[string]string
	cost    int
}

func newUserDirectory(cost int) *userDirectory {
	return &userDirectory{
		byEmail: make(map[string]account),
		byID:    make(map[string]string),
		cost:    cost,
	}
}

// add creates or replaces an account. An empty user id gets a fresh one.
func (d *userDirectory) add(user auth.User, password string) (auth.User, error) {
	if password == "" {
		return auth.User{}, errors.New("password is required")
	}
	user.Email = util.NormalizeEmail(user.Email)
	if user.ID == "" {
		user.ID = uuid.New()
	}
	if err := user.Validate(); err != nil {
		return auth.User{}, fmt.Errorf("invalid user %q: %w", user.Email, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return auth.User{}, fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEmail[user.Email] = account{user: user, hash: hash}
	d.byID[user.ID] = user.Email
	return user, nil
}

// authenticate returns the user for email if password matches. It always
// runs a bcrypt comparison so unknown emails cost the same as bad passwords.
func (d *userDirectory) authenticate(email, password string) (auth.User, bool) {
	d.mu.RLock()
	acct, ok := d.byEmail[util.NormalizeEmail(email)]
	d.mu.RUnlock()
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return auth.User{}, false
	}
	if bcrypt.CompareHashAndPassword(acct.hash, []byte(password)) != nil {
		return auth.User{}, false
	}
	return acct.user, true
}

func (d *userDirectory) byUserID(id string) (auth.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	email, ok := d.byID[id]
	if !ok {
		return auth.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, id)
	}
	return d.byEmail[email].user, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("gatekeeper-dummy"), bcrypt.MinCost)
