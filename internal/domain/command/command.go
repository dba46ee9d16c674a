// Package command holds the closed set of commands accepted by the users
// context, the envelope that carries them over the broker and its codec.
package command

// Type tags a command variant on the wire.
type Type string

const (
	TypeCreateUser     Type = "CreateUser"
	TypeDeactivateUser Type = "DeactivateUser"
)

// Types lists every command variant. A worker must register a handler for
// each of them.
func Types() []Type {
	return []Type{TypeCreateUser, TypeDeactivateUser}
}

// Command is implemented only by the variants in this package.
type Command interface {
	CommandType() Type
	isCommand()
}

// CreateUser asks the users context to create a user. The password travels
// in plain text and is hashed by the worker.
type CreateUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (CreateUser) CommandType() Type { return TypeCreateUser }
func (CreateUser) isCommand()        {}

// DeactivateUser is the compensating command for CreateUser.
type DeactivateUser struct {
	UserID string `json:"user_id"`
}

func (DeactivateUser) CommandType() Type { return TypeDeactivateUser }
func (DeactivateUser) isCommand()        {}
