package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/repository"
)

type MemberService struct {
	dir Directory
}

func NewMemberService(dir Directory) *MemberService {
	return &MemberService{dir: dir}
}

// Resolve maps an authenticated user to their member record in the workspace.
func (s *MemberService) Resolve(ctx context.Context, ws domain.WorkspaceID, user domain.UserID) (*domain.Member, error) {
	m, err := s.dir.MemberByUser(ctx, ws, user)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotMember
		}
		return nil, fmt.Errorf("directory.MemberByUser: %w", err)
	}
	return m, nil
}

func (s *MemberService) Get(ctx context.Context, id domain.MemberID) (*domain.Member, error) {
	m, err := s.dir.GetMember(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, fmt.Errorf("directory.GetMember: %w", err)
	}
	return m, nil
}

// IsConversationParticipant — участник ли member этой 1:1 беседы в своём workspace.
func (s *MemberService) IsConversationParticipant(ctx context.Context, member *domain.Member, conversationID string) (bool, error) {
	c, err := s.dir.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("directory.GetConversation: %w", err)
	}
	return c.WorkspaceID == member.WorkspaceID && c.Has(member.ID), nil
}

func (s *MemberService) CanAccess(ctx context.Context, member *domain.Member, scope domain.Scope) (bool, error) {
	switch scope.Type {
	case domain.ScopeChannel:
		ok, err := s.dir.HasChannelAccess(ctx, member.ID, scope.ID)
		if err != nil {
			return false, fmt.Errorf("directory.HasChannelAccess: %w", err)
		}
		return ok, nil
	case domain.ScopeConversation:
		return s.IsConversationParticipant(ctx, member, scope.ID)
	default:
		return false, nil
	}
}

// Authorize is CanAccess folded into the Forbidden error kind.
func (s *MemberService) Authorize(ctx context.Context, member *domain.Member, scope domain.Scope) error {
	ok, err := s.CanAccess(ctx, member, scope)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNoScopeAccess
	}
	return nil
}
