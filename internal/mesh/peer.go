package mesh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
)

// negotiation is the offer/answer state as seen from the local side.
type negotiation int

const (
	negStable negotiation = iota
	negLocalOffer
	negRemoteOffer
)

func (n negotiation) String() string {
	switch n {
	case negLocalOffer:
		return "have-local-offer"
	case negRemoteOffer:
		return "have-remote-offer"
	default:
		return "stable"
	}
}

// seenSet remembers applied envelope ids; it outlives connection restarts.
type seenSet map[string]struct{}

func (s seenSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s seenSet) add(id string) { s[id] = struct{}{} }

// peer is one connection incarnation towards a remote member.
type peer struct {
	member    domain.MemberID
	initiator bool
	joinedAt  time.Time
	// envelopes created before admitAfter belong to an earlier incarnation
	admitAfter time.Time
	createdAt  time.Time
	seen       seenSet

	ctx    context.Context
	cancel context.CancelFunc
	outbox chan []byte
	log    *slog.Logger

	mu         sync.Mutex
	conn       Connection
	neg        negotiation
	negotiated bool
	state      ConnState
	// connected is set once the connection first reaches StateConnected
	connected  bool
	tracks     map[string]Track
	closed     bool
	destroy    sync.Once
}

func newPeer(ctx context.Context, member domain.MemberID, initiator bool, joinedAt, admitAfter, now time.Time, seen seenSet, log *slog.Logger) *peer {
	ctx, cancel := context.WithCancel(ctx)
	return &peer{
		member:     member,
		initiator:  initiator,
		joinedAt:   joinedAt,
		admitAfter: admitAfter,
		createdAt:  now,
		seen:       seen,
		ctx:        ctx,
		cancel:     cancel,
		outbox:     make(chan []byte, 64),
		log:        log,
		state:      StateNew,
		tracks:     make(map[string]Track),
	}
}

// onLocalSignal queues what the connection produced for the relay.
func (p *peer) onLocalSignal(s Signal) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	switch s.Kind {
	case KindOffer:
		p.neg = negLocalOffer
	case KindAnswer:
		p.neg = negStable
		p.negotiated = true
	}
	p.mu.Unlock()

	payload, err := EncodeSignal(s)
	if err != nil {
		p.log.Warn("mesh: local signal dropped", "peer", p.member, "kind", s.Kind, "err", err)
		return
	}
	select {
	case p.outbox <- payload:
	case <-p.ctx.Done():
	}
}

func (p *peer) onRemoteTrack(t Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.tracks[t.ID()] = t
	}
}

func (p *peer) onStateChange(s ConnState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.state = s
		if s == StateConnected {
			p.connected = true
		}
	}
}

// apply checks the signal against the negotiation state and hands it to the
// connection. The state moves before the call because the connection may
// answer synchronously.
func (p *peer) apply(s Signal) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("%w: connection closed", domain.ErrStale)
	}
	if p.conn == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: no connection yet", domain.ErrTransient)
	}
	prev := p.neg
	switch s.Kind {
	case KindOffer:
		// offer на стабильном соединении — первая или повторная негоциация
		if p.neg != negStable {
			p.mu.Unlock()
			return fmt.Errorf("%w: offer while %s", domain.ErrStale, prev)
		}
		p.neg = negRemoteOffer
	case KindAnswer:
		if p.neg != negLocalOffer {
			p.mu.Unlock()
			return fmt.Errorf("%w: answer while %s", domain.ErrStale, prev)
		}
		p.neg = negStable
	}
	conn := p.conn
	p.mu.Unlock()

	if err := conn.ApplySignal(s); err != nil {
		p.mu.Lock()
		if s.Kind != KindCandidate && p.neg != prev {
			p.neg = prev
		}
		p.mu.Unlock()
		return err
	}
	if s.Kind == KindAnswer {
		p.mu.Lock()
		p.negotiated = true
		p.mu.Unlock()
	}
	return nil
}

// runOutbox sends queued payloads in order until the peer is closed.
func (p *peer) runOutbox(relay Relay, id domain.SessionID) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case payload := <-p.outbox:
			if err := relay.Send(p.ctx, id, p.member, payload); err != nil && p.ctx.Err() == nil {
				p.log.Warn("mesh: signal send failed", "peer", p.member, "err", err)
			}
		}
	}
}

// close stops the outbox, destroys the connection and forgets remote media.
func (p *peer) close() {
	p.destroy.Do(func() {
		p.cancel()
		p.mu.Lock()
		p.closed = true
		p.state = StateClosed
		p.tracks = map[string]Track{}
		conn := p.conn
		p.mu.Unlock()

		if conn != nil {
			if err := conn.Destroy(); err != nil {
				p.log.Debug("mesh: destroy connection", "peer", p.member, "err", err)
			}
		}
	})
}

// stalled reports a connection that failed or never connected in time. A
// connection that was up and is now disconnected is left to ICE to recover.
func (p *peer) stalled(now time.Time, timeout time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateFailed {
		return true
	}
	return !p.connected && timeout > 0 && now.Sub(p.createdAt) > timeout
}

type PeerInfo struct {
	Member      domain.MemberID
	Initiator   bool
	State       ConnState
	Negotiation string
	Negotiated  bool
	Tracks      int
	JoinedAt    time.Time
}

func (p *peer) info() PeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeerInfo{
		Member:      p.member,
		Initiator:   p.initiator,
		State:       p.state,
		Negotiation: p.neg.String(),
		Negotiated:  p.negotiated,
		Tracks:      len(p.tracks),
		JoinedAt:    p.joinedAt,
	}
}

func (p *peer) remoteTracks() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Track, 0, len(p.tracks))
	for _, t := range p.tracks {
		out = append(out, t)
	}
	return out
}
