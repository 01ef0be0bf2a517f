package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/events"
	"github.com/cwrk-planet/huddle-service/internal/repository"

	"github.com/samber/lo"
)

type HuddleConfig struct {
	// StartRetries bounds how often a lost create race is retried as a join.
	StartRetries int
	Now          NowFunc
	NewID        NewIDFunc
	Logger       *slog.Logger
}

// HuddleService owns the session lifecycle: start, join, leave, end and host
// handoff. Every mutation runs in one store transaction that locks the
// session row, so concurrent calls on one scope are serialized.
type HuddleService struct {
	store    repository.Store
	dir      Directory
	members  *MemberService
	resolver *Resolver
	pub      events.Publisher

	retries int
	now     NowFunc
	newID   NewIDFunc
	log     *slog.Logger
}

func NewHuddleService(store repository.Store, pub events.Publisher, cfg HuddleConfig) *HuddleService {
	if cfg.StartRetries <= 0 {
		cfg.StartRetries = 3
	}
	if cfg.Now == nil {
		cfg.Now = defaultNow
	}
	if cfg.NewID == nil {
		cfg.NewID = defaultNewID
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	dir := store.Directory()
	return &HuddleService{
		store:    store,
		dir:      dir,
		members:  NewMemberService(dir),
		resolver: NewResolver(dir, cfg.Now, cfg.NewID),
		pub:      pub,
		retries:  cfg.StartRetries,
		now:      cfg.Now,
		newID:    cfg.NewID,
		log:      cfg.Logger,
	}
}

func (s *HuddleService) Members() *MemberService { return s.members }

func (s *HuddleService) Resolver() *Resolver { return s.resolver }

// StartOrJoin resolves target and joins its active huddle, starting one with
// the caller as host when there is none.
func (s *HuddleService) StartOrJoin(ctx context.Context, caller *domain.Member, target domain.Target) (*domain.Session, error) {
	scope, err := s.resolver.Resolve(ctx, caller, target)
	if err != nil {
		return nil, err
	}
	if err := s.members.Authorize(ctx, caller, scope); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		sess, evs, err := s.startOrJoin(ctx, caller, scope)
		if errors.Is(err, domain.ErrConflict) {
			s.log.DebugContext(ctx, "huddle start lost race, retrying as join",
				"scope", scope.String(), "member", caller.ID, "attempt", attempt)
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		s.publish(ctx, evs...)
		return sess, nil
	}
	// конфликт наружу не отдаём
	return nil, fmt.Errorf("huddle start-or-join %s: gave up after %d attempts: %v", scope, s.retries, lastErr)
}

func (s *HuddleService) startOrJoin(ctx context.Context, caller *domain.Member, scope domain.Scope) (*domain.Session, []events.Event, error) {
	var (
		out *domain.Session
		evs []events.Event
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		h := tx.Huddles()

		sess, err := h.ActiveByScope(ctx, scope)
		switch {
		case err == nil:
			evs, err = s.joinLocked(ctx, h, sess, caller.ID)
			out = sess
			return err
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("huddleRepo.ActiveByScope: %w", err)
		}

		now := s.now()
		sess = &domain.Session{
			ID:          domain.SessionID(s.newID()),
			WorkspaceID: caller.WorkspaceID,
			Scope:       scope,
			CreatedBy:   caller.ID,
			Active:      true,
			CreatedAt:   now,
			StartedAt:   now,
		}
		if err := h.CreateSession(ctx, sess); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return domain.ErrConflict
			}
			return fmt.Errorf("huddleRepo.CreateSession: %w", err)
		}
		host := &domain.Participant{
			SessionID: sess.ID,
			MemberID:  caller.ID,
			Role:      domain.RoleHost,
			JoinedAt:  now,
		}
		if err := h.InsertParticipant(ctx, host); err != nil {
			return fmt.Errorf("huddleRepo.InsertParticipant: %w", err)
		}

		out = sess
		evs = []events.Event{s.event(events.HuddleStarted, sess, caller.ID)}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, evs, nil
}

// Join adds the caller to an active huddle. Joining twice is a no-op.
func (s *HuddleService) Join(ctx context.Context, caller *domain.Member, id domain.SessionID) (*domain.Session, error) {
	sess, err := s.getSession(ctx, s.store.Huddles(), id)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, domain.ErrHuddleNotFound
	}
	if err := s.members.Authorize(ctx, caller, sess.Scope); err != nil {
		return nil, err
	}

	var evs []events.Event
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		h := tx.Huddles()
		locked, err := s.getSession(ctx, h, id)
		if err != nil {
			return err
		}
		// могла закончиться между чтением и блокировкой
		if !locked.Active {
			return domain.ErrHuddleNotFound
		}
		sess = locked
		evs, err = s.joinLocked(ctx, h, locked, caller.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evs...)
	return sess, nil
}

// joinLocked expects the session row to be locked by the surrounding tx.
func (s *HuddleService) joinLocked(ctx context.Context, h repository.HuddleRepository, sess *domain.Session, member domain.MemberID) ([]events.Event, error) {
	p, err := h.GetParticipant(ctx, sess.ID, member)
	switch {
	case err == nil:
		if p.Active() {
			return nil, nil
		}
	case errors.Is(err, repository.ErrNotFound):
		p = nil
	default:
		return nil, fmt.Errorf("huddleRepo.GetParticipant: %w", err)
	}

	role, err := s.joinRole(ctx, h, sess.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if p == nil {
		p = &domain.Participant{SessionID: sess.ID, MemberID: member, Role: role, JoinedAt: now}
		if err := h.InsertParticipant(ctx, p); err != nil {
			return nil, fmt.Errorf("huddleRepo.InsertParticipant: %w", err)
		}
	} else {
		p.Role = role
		p.JoinedAt = now
		p.LeftAt = nil
		if err := h.UpdateParticipant(ctx, p); err != nil {
			return nil, fmt.Errorf("huddleRepo.UpdateParticipant: %w", err)
		}
	}

	evs := []events.Event{s.event(events.ParticipantJoined, sess, member)}
	if role == domain.RoleHost {
		evs = append(evs, s.event(events.HostChanged, sess, member))
	}
	return evs, nil
}

// joinRole hands the host role to a joiner only when the session has no
// active host, so there is never more than one.
func (s *HuddleService) joinRole(ctx context.Context, h repository.HuddleRepository, id domain.SessionID) (domain.Role, error) {
	active, err := h.ListParticipants(ctx, id, true)
	if err != nil {
		return "", fmt.Errorf("huddleRepo.ListParticipants: %w", err)
	}
	if lo.ContainsBy(active, func(p domain.Participant) bool { return p.IsHost() }) {
		return domain.RoleParticipant, nil
	}
	return domain.RoleHost, nil
}

// Leave marks the caller as left. The last one out ends the huddle; a
// departing host hands the role to the earliest remaining joiner.
func (s *HuddleService) Leave(ctx context.Context, caller *domain.Member, id domain.SessionID) error {
	var evs []events.Event
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		h := tx.Huddles()
		sess, err := s.getSession(ctx, h, id)
		if err != nil {
			return err
		}
		if !sess.Active {
			return nil
		}

		p, err := h.GetParticipant(ctx, id, caller.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("huddleRepo.GetParticipant: %w", err)
		}
		if !p.Active() {
			return nil
		}

		now := s.now()
		wasHost := p.IsHost()
		p.LeftAt = &now
		if err := h.UpdateParticipant(ctx, p); err != nil {
			return fmt.Errorf("huddleRepo.UpdateParticipant: %w", err)
		}
		evs = append(evs, s.event(events.ParticipantLeft, sess, caller.ID))

		remaining, err := h.ListParticipants(ctx, id, true)
		if err != nil {
			return fmt.Errorf("huddleRepo.ListParticipants: %w", err)
		}
		if len(remaining) == 0 {
			if err := h.EndSession(ctx, id, now); err != nil {
				return fmt.Errorf("huddleRepo.EndSession: %w", err)
			}
			evs = append(evs, s.event(events.HuddleEnded, sess, caller.ID))
			return nil
		}
		if !wasHost {
			return nil
		}

		next, _ := domain.EarliestJoined(remaining)
		next.Role = domain.RoleHost
		if err := h.UpdateParticipant(ctx, &next); err != nil {
			return fmt.Errorf("huddleRepo.UpdateParticipant(promote): %w", err)
		}
		evs = append(evs, s.event(events.HostChanged, sess, next.MemberID))
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, evs...)
	return nil
}

// End terminates the huddle for everyone. Only the current host may end it.
func (s *HuddleService) End(ctx context.Context, caller *domain.Member, id domain.SessionID) error {
	var evs []events.Event
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		h := tx.Huddles()
		sess, err := s.getSession(ctx, h, id)
		if err != nil {
			return err
		}
		if !sess.Active {
			return domain.ErrHuddleNotFound
		}

		p, err := h.GetParticipant(ctx, id, caller.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrNotHost
			}
			return fmt.Errorf("huddleRepo.GetParticipant: %w", err)
		}
		if !p.IsHost() {
			return domain.ErrNotHost
		}

		if err := h.EndSession(ctx, id, s.now()); err != nil {
			return fmt.Errorf("huddleRepo.EndSession: %w", err)
		}
		evs = []events.Event{s.event(events.HuddleEnded, sess, caller.ID)}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, evs...)
	return nil
}

// ActiveForSource returns the active huddle of the target's scope, nil when
// there is none. It never creates a conversation.
func (s *HuddleService) ActiveForSource(ctx context.Context, caller *domain.Member, target domain.Target) (*domain.Session, error) {
	scope, err := s.resolver.Lookup(ctx, caller, target)
	if err != nil {
		if errors.Is(err, domain.ErrScopeNotFound) && target.Type == domain.ScopeConversation {
			return nil, nil
		}
		return nil, err
	}
	if err := s.members.Authorize(ctx, caller, scope); err != nil {
		return nil, err
	}
	return s.GetActiveHuddle(ctx, scope)
}

// GetActiveHuddle returns nil when the scope has no active huddle.
func (s *HuddleService) GetActiveHuddle(ctx context.Context, scope domain.Scope) (*domain.Session, error) {
	sess, err := s.store.Huddles().ActiveByScope(ctx, scope)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("huddleRepo.ActiveByScope: %w", err)
	}
	return sess, nil
}

// ActiveForMember returns the huddle the member most recently joined and is
// still in, or nil.
func (s *HuddleService) ActiveForMember(ctx context.Context, member domain.MemberID) (*domain.Session, error) {
	list, err := s.store.Huddles().ActiveForMember(ctx, member)
	if err != nil {
		return nil, fmt.Errorf("huddleRepo.ActiveForMember: %w", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (s *HuddleService) Get(ctx context.Context, caller *domain.Member, id domain.SessionID) (*domain.Session, error) {
	sess, err := s.getSession(ctx, s.store.Huddles(), id)
	if err != nil {
		return nil, err
	}
	if err := s.members.Authorize(ctx, caller, sess.Scope); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListParticipants returns the active participants ordered by join time.
// An ended huddle has none, whatever its rows say.
func (s *HuddleService) ListParticipants(ctx context.Context, caller *domain.Member, id domain.SessionID) ([]domain.Participant, error) {
	sess, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return []domain.Participant{}, nil
	}
	return s.Roster(ctx, id)
}

// Roster is ListParticipants without the access check, for callers that
// already proved membership of the huddle.
func (s *HuddleService) Roster(ctx context.Context, id domain.SessionID) ([]domain.Participant, error) {
	ps, err := s.store.Huddles().ListParticipants(ctx, id, true)
	if err != nil {
		return nil, fmt.Errorf("huddleRepo.ListParticipants: %w", err)
	}
	return ps, nil
}

func (s *HuddleService) getSession(ctx context.Context, h repository.HuddleRepository, id domain.SessionID) (*domain.Session, error) {
	sess, err := h.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrHuddleNotFound
		}
		return nil, fmt.Errorf("huddleRepo.GetSession: %w", err)
	}
	return sess, nil
}

func (s *HuddleService) event(t events.Type, sess *domain.Session, member domain.MemberID) events.Event {
	return events.Event{
		Type:        t,
		WorkspaceID: sess.WorkspaceID,
		SessionID:   sess.ID,
		Scope:       sess.Scope,
		MemberID:    member,
		At:          s.now(),
	}
}

// publish runs after commit; delivery failures are logged, never returned.
func (s *HuddleService) publish(ctx context.Context, evs ...events.Event) {
	if s.pub == nil {
		return
	}
	for _, e := range evs {
		rcpt, err := s.dir.ListScopeMembers(ctx, e.Scope)
		if err != nil {
			s.log.WarnContext(ctx, "huddle event recipients lookup failed",
				"type", e.Type, "scope", e.Scope.String(), "err", err)
			continue
		}
		e.Recipients = rcpt
		if err := s.pub.Publish(ctx, e); err != nil {
			s.log.WarnContext(ctx, "huddle event publish failed",
				"type", e.Type, "huddle", e.SessionID, "err", err)
		}
	}
}
