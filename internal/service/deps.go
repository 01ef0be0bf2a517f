package service

import (
	"context"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"

	"github.com/google/uuid"
)

// Directory is what the huddle services need from workspace membership and
// the conversation store. repository.DirectoryRepository satisfies it.
type Directory interface {
	GetMember(ctx context.Context, id domain.MemberID) (*domain.Member, error)
	MemberByUser(ctx context.Context, ws domain.WorkspaceID, user domain.UserID) (*domain.Member, error)
	HasChannelAccess(ctx context.Context, member domain.MemberID, channelID string) (bool, error)

	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	FindConversation(ctx context.Context, ws domain.WorkspaceID, a, b domain.MemberID) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, c *domain.Conversation) error

	ListMemberScopes(ctx context.Context, member domain.MemberID) ([]domain.Scope, error)
	ListScopeMembers(ctx context.Context, scope domain.Scope) ([]domain.MemberID, error)
}

// Clock and id source, swapped in tests.
type (
	NowFunc   func() time.Time
	NewIDFunc func() string
)

func defaultNow() time.Time { return time.Now().UTC() }

func defaultNewID() string { return uuid.NewString() }
