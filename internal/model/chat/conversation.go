package chat

import (
	"time"

	"github.com/zhouzirui/docchat/backend/internal/model/product"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Assistant turns start pending with
// empty content and are resolved exactly once.
type Turn struct {
	Role          Role              `json:"role"`
	Content       string            `json:"content"`
	Pending       bool              `json:"pending,omitempty"`
	ProductResult []product.Product `json:"productResult,omitempty"`
}

// Conversation is an ordered snapshot of a session's turns. Epoch changes
// whenever the conversation is reset.
type Conversation struct {
	SessionID   string    `json:"sessionId"`
	Epoch       int       `json:"epoch"`
	Turns       []Turn    `json:"turns"`
	ProductMode bool      `json:"productMode"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserTurn builds a resolved user turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// PendingAssistantTurn builds the placeholder the resolver fills in.
func PendingAssistantTurn() Turn {
	return Turn{Role: RoleAssistant, Pending: true}
}

// FirstPending returns the index of the first pending turn, or -1.
func (c Conversation) FirstPending() int {
	for i, turn := range c.Turns {
		if turn.Pending {
			return i
		}
	}
	return -1
}

// HasPending reports whether any turn still awaits resolution.
func (c Conversation) HasPending() bool {
	return c.FirstPending() >= 0
}

// Clone copies the turn slice so callers can't mutate shared state.
func (c Conversation) Clone() Conversation {
	out := c
	out.Turns = append([]Turn(nil), c.Turns...)
	return out
}
