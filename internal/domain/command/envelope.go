package command

import (
	"time"

	"github.com/google/uuid"
)

// Envelope wraps a command for transport. ID is the deduplication key and is
// unique for the lifetime of the dedup window.
type Envelope struct {
	ID        string
	Type      Type
	Payload   Command
	CreatedAt time.Time
}

// NewEnvelope stamps a fresh command id and a UTC creation time.
func NewEnvelope(cmd Command, now time.Time) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      cmd.CommandType(),
		Payload:   cmd,
		CreatedAt: now.UTC(),
	}
}
