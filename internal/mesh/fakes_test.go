package mesh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
)

// hub is an in-memory relay shared by several orchestrators.
type hub struct {
	mu     sync.Mutex
	seq    int
	envs   []domain.SignalEnvelope
	purges int
}

func (h *hub) view(self domain.MemberID) *relayView { return &relayView{h: h, self: self} }

func (h *hub) inject(e domain.SignalEnvelope) {
	h.mu.Lock()
	h.envs = append(h.envs, e)
	h.mu.Unlock()
}

func (h *hub) purgeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.purges
}

type relayView struct {
	h    *hub
	self domain.MemberID
}

func (r *relayView) Send(_ context.Context, id domain.SessionID, to domain.MemberID, payload []byte) error {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	r.h.seq++
	r.h.envs = append(r.h.envs, domain.SignalEnvelope{
		ID:        fmt.Sprintf("env-%d", r.h.seq),
		Seq:       int64(r.h.seq),
		SessionID: id,
		From:      r.self,
		To:        to,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: time.Now(),
	})
	return nil
}

func (r *relayView) Receive(_ context.Context, id domain.SessionID, maxAge time.Duration) ([]domain.SignalEnvelope, error) {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	since := time.Now().Add(-maxAge)
	var out []domain.SignalEnvelope
	for _, e := range r.h.envs {
		if e.SessionID == id && e.To == r.self && e.CreatedAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *relayView) Purge(context.Context, domain.SessionID, time.Duration) error {
	r.h.mu.Lock()
	r.h.purges++
	r.h.mu.Unlock()
	return nil
}

type fakeRoster struct {
	mu sync.Mutex
	ps []domain.Participant
}

func (r *fakeRoster) ListParticipants(context.Context, domain.SessionID) ([]domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Participant(nil), r.ps...), nil
}

func (r *fakeRoster) set(ps []domain.Participant) {
	r.mu.Lock()
	r.ps = ps
	r.mu.Unlock()
}

// countingRelay counts polls of the wrapped relay.
type countingRelay struct {
	Relay
	receives atomic.Int64
}

func (r *countingRelay) Receive(ctx context.Context, id domain.SessionID, maxAge time.Duration) ([]domain.SignalEnvelope, error) {
	r.receives.Add(1)
	return r.Relay.Receive(ctx, id, maxAge)
}

type fakeTrack struct{ id, kind string }

func (t fakeTrack) ID() string   { return t.id }
func (t fakeTrack) Kind() string { return t.kind }

// fakeTransport negotiates by script: the initiator offers on creation, the
// answerer answers every offer, candidates need a remote description first.
type fakeTransport struct {
	autoConnect bool
	holdAnswers bool
	failCreate  bool

	mu    sync.Mutex
	conns map[domain.MemberID][]*fakeConn
}

func (t *fakeTransport) CreateConnection(opts ConnectionOptions) (Connection, error) {
	if t.failCreate {
		return nil, fmt.Errorf("boom")
	}
	c := &fakeConn{opts: opts, tr: t, tracks: opts.LocalTracks}
	t.mu.Lock()
	if t.conns == nil {
		t.conns = make(map[domain.MemberID][]*fakeConn)
	}
	t.conns[opts.Peer] = append(t.conns[opts.Peer], c)
	t.mu.Unlock()

	if opts.Initiator {
		opts.OnSignal(Signal{Kind: KindOffer, SDP: "v=0 offer"})
		opts.OnSignal(Signal{Kind: KindCandidate, Candidate: &Candidate{Candidate: "candidate:1"}})
	}
	return c, nil
}

func (t *fakeTransport) all(peer domain.MemberID) []*fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeConn(nil), t.conns[peer]...)
}

func (t *fakeTransport) last(tb testing.TB, peer domain.MemberID) *fakeConn {
	tb.Helper()
	cs := t.all(peer)
	if len(cs) == 0 {
		tb.Fatalf("no connection to %s", peer)
	}
	return cs[len(cs)-1]
}

type fakeConn struct {
	opts ConnectionOptions
	tr   *fakeTransport

	mu        sync.Mutex
	remoteSet bool
	applied   []Signal
	tracks    []Track
	destroyed int
}

func (c *fakeConn) ApplySignal(s Signal) error {
	c.mu.Lock()
	switch s.Kind {
	case KindCandidate:
		if !c.remoteSet {
			c.mu.Unlock()
			return fmt.Errorf("%w: no remote description", domain.ErrTransient)
		}
	default:
		c.remoteSet = true
	}
	c.applied = append(c.applied, s)
	c.mu.Unlock()

	switch {
	case s.Kind == KindOffer && !c.tr.holdAnswers:
		c.opts.OnSignal(Signal{Kind: KindAnswer, SDP: "v=0 answer"})
		c.opts.OnSignal(Signal{Kind: KindCandidate, Candidate: &Candidate{Candidate: "candidate:2"}})
		if c.tr.autoConnect {
			c.opts.OnStateChange(StateConnected)
		}
	case s.Kind == KindAnswer && c.tr.autoConnect:
		c.opts.OnStateChange(StateConnected)
	}
	return nil
}

func (c *fakeConn) SetLocalTracks(ts []Track) error {
	c.mu.Lock()
	c.tracks = ts
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Destroy() error {
	c.mu.Lock()
	c.destroyed++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) count(k SignalKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.applied {
		if s.Kind == k {
			n++
		}
	}
	return n
}

func (c *fakeConn) destroyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *fakeConn) trackIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.tracks))
	for _, t := range c.tracks {
		ids = append(ids, t.ID())
	}
	return ids
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func participant(id domain.MemberID, role domain.Role, joined time.Time) domain.Participant {
	return domain.Participant{SessionID: "h1", MemberID: id, Role: role, JoinedAt: joined}
}

func envelope(id string, from, to domain.MemberID, s Signal, at time.Time) domain.SignalEnvelope {
	b, err := EncodeSignal(s)
	if err != nil {
		panic(err)
	}
	return domain.SignalEnvelope{ID: id, SessionID: "h1", From: from, To: to, Payload: b, CreatedAt: at}
}
