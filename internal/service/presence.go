package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/repository"
)

// PresenceService answers "what huddles is this member being invited to".
type PresenceService struct {
	huddles repository.HuddleRepository
	dir     Directory
}

func NewPresenceService(store repository.Store) *PresenceService {
	return &PresenceService{huddles: store.Huddles(), dir: store.Directory()}
}

// Incoming lists active huddles in the member's channels and conversations
// that the member is not currently in.
func (s *PresenceService) Incoming(ctx context.Context, member domain.MemberID) ([]domain.Session, error) {
	scopes, err := s.dir.ListMemberScopes(ctx, member)
	if err != nil {
		return nil, fmt.Errorf("directory.ListMemberScopes: %w", err)
	}
	if len(scopes) == 0 {
		return []domain.Session{}, nil
	}
	sessions, err := s.huddles.ActiveByScopes(ctx, scopes)
	if err != nil {
		return nil, fmt.Errorf("huddleRepo.ActiveByScopes: %w", err)
	}

	out := make([]domain.Session, 0, len(sessions))
	for _, sess := range sessions {
		p, err := s.huddles.GetParticipant(ctx, sess.ID, member)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			out = append(out, sess)
		case err != nil:
			return nil, fmt.Errorf("huddleRepo.GetParticipant: %w", err)
		case !p.Active():
			out = append(out, sess)
		}
	}
	return out, nil
}
