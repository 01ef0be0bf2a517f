package ws

import (
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/events"
)

// Кроме snapshot, тип сообщения совпадает с типом события шины (huddle.started и т.д.).
const TypeSnapshot = "snapshot"

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// SnapshotPayload отправляется сразу после подключения.
type SnapshotPayload struct {
	Active   *HuddleItem  `json:"active"`
	Incoming []HuddleItem `json:"incoming"`
}

type HuddleItem struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	ScopeType   string    `json:"scope_type"`
	ScopeID     string    `json:"scope_id"`
	CreatedBy   string    `json:"created_by"`
	StartedAt   time.Time `json:"started_at"`
}

type EventPayload struct {
	HuddleID    string    `json:"huddle_id"`
	WorkspaceID string    `json:"workspace_id"`
	ScopeType   string    `json:"scope_type"`
	ScopeID     string    `json:"scope_id"`
	MemberID    string    `json:"member_id,omitempty"`
	At          time.Time `json:"at"`
}

func huddleItem(s *domain.Session) HuddleItem {
	return HuddleItem{
		ID:          string(s.ID),
		WorkspaceID: string(s.WorkspaceID),
		ScopeType:   string(s.Scope.Type),
		ScopeID:     s.Scope.ID,
		CreatedBy:   string(s.CreatedBy),
		StartedAt:   s.StartedAt,
	}
}

func eventPayload(e events.Event) EventPayload {
	return EventPayload{
		HuddleID:    string(e.SessionID),
		WorkspaceID: string(e.WorkspaceID),
		ScopeType:   string(e.Scope.Type),
		ScopeID:     e.Scope.ID,
		MemberID:    string(e.MemberID),
		At:          e.At,
	}
}
