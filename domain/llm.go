package domain

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Completer abstracts any chat-completion backend.
type Completer interface {
	// Complete sends the whole transcript and returns the backend's next turn.
	Complete(ctx context.Context, req CompletionRequest) (Turn, error)
}

type CompletionRequest struct {
	Messages    []Turn
	Temperature float64
}

// Turn is one message of the conversation. ID and CreatedAt are local
// metadata and never leave the process.
type Turn struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// NewTurn stamps a turn with a fresh ULID and the current time.
func NewTurn(role Role, content string) Turn {
	return Turn{
		ID:        ulid.Make().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	switch r {
	case UserRole, AssistantRole, SystemRole:
		return true
	}
	return false
}
