// Package events fans huddle lifecycle changes out to the presence feed.
package events

import (
	"context"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
)

type Type string

const (
	HuddleStarted     Type = "huddle.started"
	ParticipantJoined Type = "huddle.participant_joined"
	ParticipantLeft   Type = "huddle.participant_left"
	HostChanged       Type = "huddle.host_changed"
	HuddleEnded       Type = "huddle.ended"
)

type Event struct {
	Type        Type               `json:"type"`
	WorkspaceID domain.WorkspaceID `json:"workspace_id"`
	SessionID   domain.SessionID   `json:"session_id"`
	Scope       domain.Scope       `json:"scope"`
	// MemberID is the member the event is about (joined, left, new host).
	MemberID   domain.MemberID   `json:"member_id,omitempty"`
	Recipients []domain.MemberID `json:"recipients"`
	At         time.Time         `json:"at"`
}

type Handler func(ctx context.Context, e Event)

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Bus interface {
	Publisher
	// Subscribe registers h until ctx is done.
	Subscribe(ctx context.Context, h Handler)
	Close() error
}
