package auth

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return Role(fl.Field().String()).Valid()
	})
}

// User is the profile returned by the backend on login.
type User struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Role   Role   `json:"role" validate:"required,role"`
	Avatar string `json:"avatar,omitempty"`
}

// Validate checks that u has the shape of a backend user.
func (u User) Validate() error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}
	return nil
}

// Session is the live binding between a token and a user.
type Session struct {
	ID            string
	Token         string
	User          User
	EstablishedAt time.Time
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is returned from POST /auth/login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
