package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/repository"
)

// Resolver turns a caller-supplied target into the canonical huddle scope.
type Resolver struct {
	dir   Directory
	now   NowFunc
	newID NewIDFunc
}

func NewResolver(dir Directory, now NowFunc, newID NewIDFunc) *Resolver {
	if now == nil {
		now = defaultNow
	}
	if newID == nil {
		newID = defaultNewID
	}
	return &Resolver{dir: dir, now: now, newID: newID}
}

// Resolve may create the caller's conversation with a counterpart member.
func (r *Resolver) Resolve(ctx context.Context, caller *domain.Member, t domain.Target) (domain.Scope, error) {
	return r.resolve(ctx, caller, t, true)
}

// Lookup is Resolve without side effects; a missing conversation is ErrScopeNotFound.
func (r *Resolver) Lookup(ctx context.Context, caller *domain.Member, t domain.Target) (domain.Scope, error) {
	return r.resolve(ctx, caller, t, false)
}

func (r *Resolver) resolve(ctx context.Context, caller *domain.Member, t domain.Target, create bool) (domain.Scope, error) {
	if t.ID == "" {
		return domain.Scope{}, fmt.Errorf("%w: empty target", domain.ErrInvalid)
	}

	switch t.Type {
	case domain.ScopeChannel:
		// права на канал проверяет вызывающая сторона
		return domain.Scope{Type: domain.ScopeChannel, ID: t.ID}, nil

	case domain.ScopeConversation:
		conv, err := r.dir.GetConversation(ctx, t.ID)
		switch {
		case err == nil && conv.WorkspaceID == caller.WorkspaceID && conv.Has(caller.ID):
			return domain.Scope{Type: domain.ScopeConversation, ID: conv.ID}, nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return domain.Scope{}, fmt.Errorf("directory.GetConversation: %w", err)
		}

		// иначе target — id собеседника
		conv, err = r.conversationWith(ctx, caller, domain.MemberID(t.ID), create)
		if err != nil {
			return domain.Scope{}, err
		}
		return domain.Scope{Type: domain.ScopeConversation, ID: conv.ID}, nil

	default:
		return domain.Scope{}, fmt.Errorf("%w: scope type %q", domain.ErrInvalid, t.Type)
	}
}

func (r *Resolver) conversationWith(ctx context.Context, caller *domain.Member, peerID domain.MemberID, create bool) (*domain.Conversation, error) {
	if peerID == caller.ID {
		return nil, domain.ErrScopeNotFound
	}
	peer, err := r.dir.GetMember(ctx, peerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrScopeNotFound
		}
		return nil, fmt.Errorf("directory.GetMember: %w", err)
	}
	if peer.WorkspaceID != caller.WorkspaceID {
		return nil, domain.ErrScopeNotFound
	}

	conv, err := r.dir.FindConversation(ctx, caller.WorkspaceID, caller.ID, peer.ID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("directory.FindConversation: %w", err)
	}
	if !create {
		return nil, domain.ErrScopeNotFound
	}

	conv = &domain.Conversation{
		ID:          r.newID(),
		WorkspaceID: caller.WorkspaceID,
		MemberA:     caller.ID,
		MemberB:     peer.ID,
		CreatedAt:   r.now(),
	}
	err = r.dir.CreateConversation(ctx, conv)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return nil, fmt.Errorf("directory.CreateConversation: %w", err)
	}

	// кто-то создал беседу раньше нас — берём его запись
	conv, err = r.dir.FindConversation(ctx, caller.WorkspaceID, caller.ID, peer.ID)
	if err != nil {
		return nil, fmt.Errorf("directory.FindConversation after conflict: %w", err)
	}
	return conv, nil
}
