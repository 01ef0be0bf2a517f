package mesh

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"

	"github.com/samber/lo"
)

type Config struct {
	Session domain.SessionID
	Self    domain.MemberID

	PollInterval   time.Duration
	RosterInterval time.Duration
	ConnectTimeout time.Duration
	// ReadWindow is the maxAge passed to Relay.Receive.
	ReadWindow time.Duration
	// PurgeInterval and PurgeWindow drive the host's relay housekeeping.
	PurgeInterval time.Duration
	PurgeWindow   time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.RosterInterval <= 0 {
		c.RosterInterval = time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.ReadWindow <= 0 {
		c.ReadWindow = 30 * time.Second
	}
	if c.PurgeInterval <= 0 {
		c.PurgeInterval = 60 * time.Second
	}
	if c.PurgeWindow <= 0 {
		c.PurgeWindow = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Orchestrator is the mesh state of one local participant in one huddle.
// All per-peer state lives here; callers get snapshots only.
type Orchestrator struct {
	cfg       Config
	transport Transport
	relay     Relay
	roster    Roster
	log       *slog.Logger

	disabled atomic.Bool
	started  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	loopWG   sync.WaitGroup
	peerWG   sync.WaitGroup
	done     chan struct{}

	mu     sync.Mutex
	peers  map[domain.MemberID]*peer
	seen   map[domain.MemberID]seenSet
	want   map[domain.MemberID]domain.Participant
	self   *domain.Participant
	tracks []Track
}

func New(cfg Config, transport Transport, relay Relay, roster Roster) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		cfg:       cfg,
		transport: transport,
		relay:     relay,
		roster:    roster,
		log:       cfg.Logger.With("huddle", cfg.Session, "self", cfg.Self),
		peers:     make(map[domain.MemberID]*peer),
		seen:      make(map[domain.MemberID]seenSet),
		want:      make(map[domain.MemberID]domain.Participant),
		done:      make(chan struct{}),
	}
}

// ErrNotInRoster is returned by Start when the local participant is not an
// active member of the huddle.
var ErrNotInRoster = errors.New("mesh: local participant is not in the roster")

// Start loads the roster, opens connections and starts the polling loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return errors.New("mesh: already started")
	}
	o.init(ctx)

	ps, err := o.roster.ListParticipants(ctx, o.cfg.Session)
	if err != nil {
		o.Stop()
		return err
	}
	if o.applyRoster(ps) {
		o.Stop()
		return ErrNotInRoster
	}

	o.loopWG.Add(1)
	go o.run()
	return nil
}

func (o *Orchestrator) init(ctx context.Context) {
	o.ctx, o.cancel = context.WithCancel(ctx)
}

// Stop cancels polling and destroys every connection before returning. No
// signal is applied after Stop begins.
func (o *Orchestrator) Stop() { o.shutdown(false) }

// Done is closed once the orchestrator is stopped: by Stop, or by itself
// when the roster no longer lists the local participant.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// shutdown from the polling goroutine must not wait for that goroutine.
func (o *Orchestrator) shutdown(inLoop bool) {
	if !o.disabled.CompareAndSwap(false, true) {
		if !inLoop {
			<-o.done
		}
		return
	}
	if o.cancel != nil {
		o.cancel()
	}
	if !inLoop {
		o.loopWG.Wait()
	}

	o.mu.Lock()
	peers := o.peers
	o.peers = make(map[domain.MemberID]*peer)
	o.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	o.peerWG.Wait()
	close(o.done)
	o.log.Debug("mesh: stopped", "peers", len(peers))
}

func (o *Orchestrator) run() {
	defer o.loopWG.Done()

	poll := time.NewTicker(o.cfg.PollInterval)
	defer poll.Stop()
	refresh := time.NewTicker(o.cfg.RosterInterval)
	defer refresh.Stop()
	purge := time.NewTicker(o.cfg.PurgeInterval)
	defer purge.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-poll.C:
			o.drain(o.ctx)
		case <-refresh.C:
			o.refreshRoster(o.ctx)
			if o.disabled.Load() {
				return
			}
			o.reapStalled()
		case <-purge.C:
			o.purgeIfHost(o.ctx)
		}
	}
}

// UpdateRoster diffs the active participant list against live connections.
// A roster without the local participant (left, removed, or the huddle
// ended) stops the orchestrator.
func (o *Orchestrator) UpdateRoster(ps []domain.Participant) {
	if o.applyRoster(ps) {
		o.Stop()
	}
}

// applyRoster reports whether the local participant is gone.
func (o *Orchestrator) applyRoster(ps []domain.Participant) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disabled.Load() || o.ctx == nil {
		return false
	}

	o.self = nil
	want := make(map[domain.MemberID]domain.Participant, len(ps))
	for _, p := range ps {
		if !p.Active() {
			continue
		}
		if p.MemberID == o.cfg.Self {
			self := p
			o.self = &self
			continue
		}
		want[p.MemberID] = p
	}
	if o.self == nil {
		// нас нет в ростере: ушли или хадл закончился
		o.log.Info("mesh: local participant not in roster, stopping", "peers", len(o.peers))
		return true
	}
	o.want = want

	for id, p := range o.peers {
		w, ok := want[id]
		if !ok {
			o.removePeerLocked(id, true)
			continue
		}
		if !w.JoinedAt.Equal(p.joinedAt) {
			// peer rejoined: new incarnation
			o.removePeerLocked(id, true)
		}
	}
	for id, w := range want {
		if _, ok := o.peers[id]; !ok {
			o.connectLocked(w)
		}
	}
	return false
}

func (o *Orchestrator) refreshRoster(ctx context.Context) {
	ps, err := o.roster.ListParticipants(ctx, o.cfg.Session)
	if err != nil {
		if ctx.Err() == nil {
			o.log.Warn("mesh: roster refresh failed", "err", err)
		}
		return
	}
	if o.applyRoster(ps) {
		o.shutdown(true)
	}
}

func (o *Orchestrator) connectLocked(w domain.Participant) {
	seen, ok := o.seen[w.MemberID]
	if !ok {
		seen = make(seenSet)
		o.seen[w.MemberID] = seen
	}
	admitAfter := w.JoinedAt
	if o.self != nil && o.self.JoinedAt.After(admitAfter) {
		admitAfter = o.self.JoinedAt
	}

	p := newPeer(o.ctx, w.MemberID, IsInitiator(o.cfg.Self, w.MemberID), w.JoinedAt, admitAfter, o.cfg.Now(), seen, o.log)
	o.peerWG.Add(1)
	go func() {
		defer o.peerWG.Done()
		p.runOutbox(o.relay, o.cfg.Session)
	}()

	conn, err := o.transport.CreateConnection(ConnectionOptions{
		Peer:          w.MemberID,
		Initiator:     p.initiator,
		LocalTracks:   slices.Clone(o.tracks),
		OnSignal:      p.onLocalSignal,
		OnRemoteTrack: p.onRemoteTrack,
		OnStateChange: p.onStateChange,
	})
	if err != nil {
		// peer stays in the map as failed; reapStalled retries it
		o.log.Warn("mesh: create connection failed", "peer", w.MemberID, "err", err)
		p.onStateChange(StateFailed)
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	o.peers[w.MemberID] = p
	o.log.Debug("mesh: peer added", "peer", w.MemberID, "initiator", p.initiator)
}

func (o *Orchestrator) removePeerLocked(id domain.MemberID, forget bool) {
	p, ok := o.peers[id]
	if !ok {
		return
	}
	delete(o.peers, id)
	if forget {
		delete(o.seen, id)
	}
	p.close()
	o.log.Debug("mesh: peer removed", "peer", id)
}

// reapStalled abandons connections that failed or never connected and
// recreates them while the roster still lists the peer.
func (o *Orchestrator) reapStalled() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disabled.Load() {
		return
	}
	now := o.cfg.Now()
	for id, p := range o.peers {
		if !p.stalled(now, o.cfg.ConnectTimeout) {
			continue
		}
		o.log.Info("mesh: connection stalled, recreating", "peer", id)
		o.removePeerLocked(id, false)
		if w, ok := o.want[id]; ok {
			o.connectLocked(w)
		}
	}
}

// drain applies new envelopes addressed to the local participant.
func (o *Orchestrator) drain(ctx context.Context) {
	if o.disabled.Load() {
		return
	}
	envs, err := o.relay.Receive(ctx, o.cfg.Session, o.cfg.ReadWindow)
	if err != nil {
		if ctx.Err() == nil {
			o.log.Warn("mesh: receive signals failed", "err", err)
		}
		return
	}
	for _, e := range envs {
		if o.disabled.Load() {
			return
		}
		o.deliver(e)
	}
}

func (o *Orchestrator) deliver(e domain.SignalEnvelope) {
	o.mu.Lock()
	p := o.peers[e.From]
	o.mu.Unlock()
	if p == nil {
		// соединения ещё нет или peer уже ушёл; конверт остаётся в окне
		return
	}
	if p.seen.has(e.ID) {
		return
	}
	if e.CreatedAt.Before(p.admitAfter) {
		p.seen.add(e.ID)
		o.log.Debug("mesh: signal from earlier incarnation dropped", "peer", e.From, "envelope", e.ID)
		return
	}

	sig, err := DecodeSignal(e.Payload)
	if err != nil {
		p.seen.add(e.ID)
		o.log.Warn("mesh: undecodable signal dropped", "peer", e.From, "envelope", e.ID, "err", err)
		return
	}

	err = p.apply(sig)
	switch {
	case err == nil:
		p.seen.add(e.ID)
	case errors.Is(err, domain.ErrTransient):
		o.log.Debug("mesh: signal deferred", "peer", e.From, "kind", sig.Kind, "err", err)
	default:
		p.seen.add(e.ID)
		o.log.Debug("mesh: signal dropped", "peer", e.From, "kind", sig.Kind, "err", err)
	}
}

func (o *Orchestrator) purgeIfHost(ctx context.Context) {
	o.mu.Lock()
	host := o.self != nil && o.self.IsHost()
	o.mu.Unlock()
	if !host {
		return
	}
	if err := o.relay.Purge(ctx, o.cfg.Session, o.cfg.PurgeWindow); err != nil && ctx.Err() == nil {
		o.log.Debug("mesh: relay purge failed", "err", err)
	}
}

// SetLocalTracks replaces outbound media on every open connection in place.
func (o *Orchestrator) SetLocalTracks(tracks []Track) error {
	o.mu.Lock()
	if o.disabled.Load() {
		o.mu.Unlock()
		return nil
	}
	o.tracks = slices.Clone(tracks)
	peers := lo.Values(o.peers)
	o.mu.Unlock()

	var errs []error
	for _, p := range peers {
		p.mu.Lock()
		conn, closed := p.conn, p.closed
		p.mu.Unlock()
		if conn == nil || closed || o.disabled.Load() {
			continue
		}
		if err := conn.SetLocalTracks(tracks); err != nil {
			o.log.Warn("mesh: replace local tracks failed", "peer", p.member, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Peers returns connection state per remote member, ordered by member id.
func (o *Orchestrator) Peers() []PeerInfo {
	o.mu.Lock()
	peers := lo.Values(o.peers)
	o.mu.Unlock()

	out := lo.Map(peers, func(p *peer, _ int) PeerInfo { return p.info() })
	slices.SortFunc(out, func(a, b PeerInfo) int {
		switch {
		case a.Member < b.Member:
			return -1
		case a.Member > b.Member:
			return 1
		}
		return 0
	})
	return out
}

// RemoteStreams returns the remote tracks received from each peer.
func (o *Orchestrator) RemoteStreams() map[domain.MemberID][]Track {
	o.mu.Lock()
	peers := lo.Values(o.peers)
	o.mu.Unlock()

	out := make(map[domain.MemberID][]Track, len(peers))
	for _, p := range peers {
		if ts := p.remoteTracks(); len(ts) > 0 {
			out[p.member] = ts
		}
	}
	return out
}
