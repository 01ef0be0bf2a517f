package domain

import "time"

type (
	WorkspaceID string
	MemberID    string
	UserID      int64
)

// Member is a user's identity inside one workspace.
type Member struct {
	ID          MemberID    `db:"id"`
	WorkspaceID WorkspaceID `db:"workspace_id"`
	UserID      UserID      `db:"user_id"`
	DisplayName string      `db:"display_name"`
	CreatedAt   time.Time   `db:"created_at"`
}

// Conversation is the canonical 1:1 scope; MemberA < MemberB always.
type Conversation struct {
	ID          string      `db:"id"`
	WorkspaceID WorkspaceID `db:"workspace_id"`
	MemberA     MemberID    `db:"member_a"`
	MemberB     MemberID    `db:"member_b"`
	CreatedAt   time.Time   `db:"created_at"`
}

// OrderedPair returns the two member ids in canonical order.
func OrderedPair(a, b MemberID) (MemberID, MemberID) {
	if b < a {
		return b, a
	}
	return a, b
}

func (c Conversation) Has(m MemberID) bool {
	return c.MemberA == m || c.MemberB == m
}

// Counterpart returns the other member of the conversation.
func (c Conversation) Counterpart(m MemberID) MemberID {
	if c.MemberA == m {
		return c.MemberB
	}
	return c.MemberA
}
