package domain

import "fmt"

type ScopeType string

const (
	ScopeChannel      ScopeType = "channel"
	ScopeConversation ScopeType = "conversation"
)

func (t ScopeType) Valid() bool {
	return t == ScopeChannel || t == ScopeConversation
}

// Scope is the canonical binding of a huddle: a channel or a 1:1 conversation.
type Scope struct {
	Type ScopeType `db:"scope_type" json:"type"`
	ID   string    `db:"scope_id" json:"id"`
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s", s.Type, s.ID)
}

// Target is what the caller hands in before resolution: a channel id, or for
// conversations either a conversation id or the counterpart member id.
type Target struct {
	Type ScopeType
	ID   string
}
