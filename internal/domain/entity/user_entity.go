package entity

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxPasswordBytes is the bcrypt input limit.
const MaxPasswordBytes = 72

var validate = validator.New()

// User is the aggregate root of the users context.
// It is only ever created by the command worker applying a CreateUser
// command (or by the auth registration seam), never by the read path.
type User struct {
	ID              string
	Name            string
	Email           string
	PasswordHash    string
	SourceCommandID string
	DeactivatedAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewUser validates the inputs and returns an unsaved user. The ID is
// assigned by the repository on Create.
func NewUser(name, email, plainPassword string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	email = NormalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, &ValidationError{Field: "email", Reason: "must be a valid email"}
	}
	if plainPassword == "" {
		return nil, &ValidationError{Field: "password", Reason: "must not be empty"}
	}
	// bcrypt ignores everything past 72 bytes and x/crypto rejects it outright
	if len(plainPassword) > MaxPasswordBytes {
		return nil, &ValidationError{Field: "password", Reason: "must be at most 72 bytes"}
	}
	return &User{Name: name, Email: email}, nil
}

// NormalizeEmail lower-cases and trims an email so lookups and the unique
// constraint agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) IsActive() bool {
	return u.DeactivatedAt == nil
}
