package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/repository"
)

const (
	DefaultSignalReadWindow  = 30 * time.Second
	DefaultSignalPurgeWindow = 60 * time.Second
)

type SignalConfig struct {
	// ReadWindow is the default maxAge of Receive.
	ReadWindow time.Duration
	// PurgeWindow is the default olderThan of Purge and the housekeeping sweep.
	PurgeWindow time.Duration
	Now         NowFunc
	NewID       NewIDFunc
}

// SignalService is the persistent mailbox peers exchange negotiation
// payloads through. It does not interpret payloads.
type SignalService struct {
	huddles repository.HuddleRepository
	signals repository.SignalRepository

	readWindow  time.Duration
	purgeWindow time.Duration
	now         NowFunc
	newID       NewIDFunc
}

func NewSignalService(store repository.Store, cfg SignalConfig) *SignalService {
	if cfg.ReadWindow <= 0 {
		cfg.ReadWindow = DefaultSignalReadWindow
	}
	if cfg.PurgeWindow <= 0 {
		cfg.PurgeWindow = DefaultSignalPurgeWindow
	}
	if cfg.Now == nil {
		cfg.Now = defaultNow
	}
	if cfg.NewID == nil {
		cfg.NewID = defaultNewID
	}
	return &SignalService{
		huddles:     store.Huddles(),
		signals:     store.Signals(),
		readWindow:  cfg.ReadWindow,
		purgeWindow: cfg.PurgeWindow,
		now:         cfg.Now,
		newID:       cfg.NewID,
	}
}

// Send stores one envelope from an active participant of an active huddle.
func (s *SignalService) Send(ctx context.Context, id domain.SessionID, from, to domain.MemberID, payload []byte) (*domain.SignalEnvelope, error) {
	if to == "" || to == from {
		return nil, fmt.Errorf("%w: bad recipient", domain.ErrInvalid)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalid)
	}

	sess, err := s.activeSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx, sess.ID, from); err != nil {
		return nil, err
	}

	e := &domain.SignalEnvelope{
		ID:        s.newID(),
		SessionID: sess.ID,
		From:      from,
		To:        to,
		Payload:   payload,
		CreatedAt: s.now(),
	}
	if err := s.signals.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("signalRepo.Append: %w", err)
	}
	return e, nil
}

// Receive returns envelopes addressed to `to` younger than maxAge, in send
// order. Reading does not consume; callers dedup by envelope id.
func (s *SignalService) Receive(ctx context.Context, id domain.SessionID, to domain.MemberID, maxAge time.Duration) ([]domain.SignalEnvelope, error) {
	if maxAge <= 0 {
		maxAge = s.readWindow
	}
	if _, err := s.session(ctx, id); err != nil {
		return nil, err
	}
	list, err := s.signals.ListFor(ctx, id, to, s.now().Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("signalRepo.ListFor: %w", err)
	}
	return list, nil
}

// Purge deletes the huddle's envelopes older than olderThan.
func (s *SignalService) Purge(ctx context.Context, id domain.SessionID, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = s.purgeWindow
	}
	n, err := s.signals.PurgeSession(ctx, id, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("signalRepo.PurgeSession: %w", err)
	}
	return n, nil
}

// PurgeAsHost is Purge restricted to the huddle's current host.
func (s *SignalService) PurgeAsHost(ctx context.Context, id domain.SessionID, caller domain.MemberID, olderThan time.Duration) (int64, error) {
	if _, err := s.session(ctx, id); err != nil {
		return 0, err
	}
	p, err := s.huddles.GetParticipant(ctx, id, caller)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return 0, fmt.Errorf("huddleRepo.GetParticipant: %w", err)
	}
	if p == nil || !p.IsHost() {
		return 0, domain.ErrNotHost
	}
	return s.Purge(ctx, id, olderThan)
}

// PurgeExpired sweeps every huddle; run by the housekeeping job.
func (s *SignalService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.signals.PurgeBefore(ctx, s.now().Add(-s.purgeWindow))
	if err != nil {
		return 0, fmt.Errorf("signalRepo.PurgeBefore: %w", err)
	}
	return n, nil
}

func (s *SignalService) session(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	sess, err := s.huddles.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrHuddleNotFound
		}
		return nil, fmt.Errorf("huddleRepo.GetSession: %w", err)
	}
	return sess, nil
}

func (s *SignalService) activeSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, domain.ErrHuddleNotFound
	}
	return sess, nil
}

func (s *SignalService) requireActive(ctx context.Context, id domain.SessionID, member domain.MemberID) error {
	p, err := s.huddles.GetParticipant(ctx, id, member)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotParticipant
		}
		return fmt.Errorf("huddleRepo.GetParticipant: %w", err)
	}
	if !p.Active() {
		return domain.ErrNotParticipant
	}
	return nil
}
