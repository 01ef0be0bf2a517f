package repository

import (
	"context"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
)

// HuddleRepository stores sessions and participant rows. Implementations bound
// to a transaction lock the session rows they read until commit.
type HuddleRepository interface {
	GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	ActiveByScope(ctx context.Context, scope domain.Scope) (*domain.Session, error)
	ActiveByScopes(ctx context.Context, scopes []domain.Scope) ([]domain.Session, error)
	// ActiveForMember returns active sessions where the member has an active row,
	// most recently joined first.
	ActiveForMember(ctx context.Context, member domain.MemberID) ([]domain.Session, error)

	// CreateSession returns ErrConflict when the scope already has an active session.
	CreateSession(ctx context.Context, s *domain.Session) error
	EndSession(ctx context.Context, id domain.SessionID, endedAt time.Time) error

	GetParticipant(ctx context.Context, id domain.SessionID, member domain.MemberID) (*domain.Participant, error)
	InsertParticipant(ctx context.Context, p *domain.Participant) error
	UpdateParticipant(ctx context.Context, p *domain.Participant) error
	// ListParticipants orders by joined_at, member_id.
	ListParticipants(ctx context.Context, id domain.SessionID, activeOnly bool) ([]domain.Participant, error)
}

type SignalRepository interface {
	// Append assigns Seq.
	Append(ctx context.Context, e *domain.SignalEnvelope) error
	// ListFor returns envelopes for `to` created after `since`, ordered by created_at, seq.
	ListFor(ctx context.Context, id domain.SessionID, to domain.MemberID, since time.Time) ([]domain.SignalEnvelope, error)
	PurgeSession(ctx context.Context, id domain.SessionID, before time.Time) (int64, error)
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

// DirectoryRepository is the SQL-backed view of workspace membership, channel
// access and 1:1 conversations.
type DirectoryRepository interface {
	GetMember(ctx context.Context, id domain.MemberID) (*domain.Member, error)
	MemberByUser(ctx context.Context, ws domain.WorkspaceID, user domain.UserID) (*domain.Member, error)
	AddMember(ctx context.Context, m *domain.Member) error
	RemoveMember(ctx context.Context, id domain.MemberID) error

	HasChannelAccess(ctx context.Context, member domain.MemberID, channelID string) (bool, error)
	GrantChannel(ctx context.Context, channelID string, member domain.MemberID) error

	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	FindConversation(ctx context.Context, ws domain.WorkspaceID, a, b domain.MemberID) (*domain.Conversation, error)
	// CreateConversation returns ErrConflict when the pair already has one.
	CreateConversation(ctx context.Context, c *domain.Conversation) error

	ListMemberScopes(ctx context.Context, member domain.MemberID) ([]domain.Scope, error)
	ListScopeMembers(ctx context.Context, scope domain.Scope) ([]domain.MemberID, error)
}

type Tx interface {
	Huddles() HuddleRepository
}

// Store bundles the repositories of one backing database.
type Store interface {
	Huddles() HuddleRepository
	Signals() SignalRepository
	Directory() DirectoryRepository

	// InTx runs fn in one transaction; fn must only use tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
