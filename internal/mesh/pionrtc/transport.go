// Package pionrtc implements the mesh transport on pion/webrtc with trickle ICE.
package pionrtc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/mesh"

	"github.com/pion/webrtc/v4"
)

type Config struct {
	ICEServers []string
	UDPPortMin uint16
	UDPPortMax uint16
	Logger     *slog.Logger
}

type Transport struct {
	api *webrtc.API
	rtc webrtc.Configuration
	log *slog.Logger
}

func New(cfg Config) (*Transport, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	se := webrtc.SettingEngine{LoggerFactory: LoggerFactory{Logger: cfg.Logger}}
	if cfg.UDPPortMin != 0 || cfg.UDPPortMax != 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.UDPPortMin, cfg.UDPPortMax); err != nil {
			return nil, fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	rtc := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		rtc.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	return &Transport{
		api: webrtc.NewAPI(webrtc.WithSettingEngine(se), webrtc.WithMediaEngine(me)),
		rtc: rtc,
		log: cfg.Logger,
	}, nil
}

func (t *Transport) CreateConnection(opts mesh.ConnectionOptions) (mesh.Connection, error) {
	pc, err := t.api.NewPeerConnection(t.rtc)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	c := &conn{
		pc:      pc,
		opts:    opts,
		senders: make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
		log:     t.log.With("peer", opts.Peer),
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		opts.OnSignal(mesh.Signal{Kind: mesh.KindCandidate, Candidate: &mesh.Candidate{
			Candidate:        ci.Candidate,
			SDPMid:           ci.SDPMid,
			SDPMLineIndex:    ci.SDPMLineIndex,
			UsernameFragment: ci.UsernameFragment,
		}})
	})
	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if opts.OnRemoteTrack != nil {
			opts.OnRemoteTrack(RemoteTrack{Remote: tr})
		}
		// медиа не обрабатываем, но читать обязаны
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := tr.Read(buf); err != nil {
					return
				}
			}
		}()
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if opts.OnStateChange != nil {
			opts.OnStateChange(mapState(s))
		}
	})

	if opts.Initiator {
		if err := c.offer(); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}
	return c, nil
}

type conn struct {
	pc   *webrtc.PeerConnection
	opts mesh.ConnectionOptions
	log  *slog.Logger

	mu       sync.Mutex
	senders  map[webrtc.RTPCodecType]*webrtc.RTPSender
	attached bool
	once     sync.Once
}

// attach adds the local tracks once; kinds without a track get a recv-only
// transceiver on the offering side so the peer can still send them.
func (c *conn) attach(recvOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return nil
	}
	c.attached = true

	for _, tr := range c.opts.LocalTracks {
		lt, ok := tr.(LocalTrack)
		if !ok {
			return fmt.Errorf("unsupported track type %T", tr)
		}
		sender, err := c.pc.AddTrack(lt.Track)
		if err != nil {
			return fmt.Errorf("add track %s: %w", lt.ID(), err)
		}
		c.senders[lt.Track.Kind()] = sender
	}
	if !recvOnly {
		return nil
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, ok := c.senders[kind]; ok {
			continue
		}
		if _, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

func (c *conn) offer() error {
	if err := c.attach(true); err != nil {
		return err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	c.opts.OnSignal(mesh.Signal{Kind: mesh.KindOffer, SDP: offer.SDP})
	return nil
}

func (c *conn) ApplySignal(s mesh.Signal) error {
	switch s.Kind {
	case mesh.KindOffer:
		if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: s.SDP}); err != nil {
			return fmt.Errorf("%w: set remote offer: %v", domain.ErrStale, err)
		}
		if err := c.attach(false); err != nil {
			return err
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local answer: %w", err)
		}
		c.opts.OnSignal(mesh.Signal{Kind: mesh.KindAnswer, SDP: answer.SDP})
		return nil

	case mesh.KindAnswer:
		if c.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
			return fmt.Errorf("%w: answer in signaling state %s", domain.ErrStale, c.pc.SignalingState())
		}
		if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: s.SDP}); err != nil {
			return fmt.Errorf("%w: set remote answer: %v", domain.ErrStale, err)
		}
		return nil

	case mesh.KindCandidate:
		if c.pc.RemoteDescription() == nil {
			return fmt.Errorf("%w: candidate before remote description", domain.ErrTransient)
		}
		cand := s.Candidate
		return c.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:        cand.Candidate,
			SDPMid:           cand.SDPMid,
			SDPMLineIndex:    cand.SDPMLineIndex,
			UsernameFragment: cand.UsernameFragment,
		})

	default:
		return fmt.Errorf("%w: signal kind %q", domain.ErrInvalid, s.Kind)
	}
}

// SetLocalTracks replaces outbound media per kind; kinds missing from
// tracks are muted by sending nothing.
func (c *conn) SetLocalTracks(tracks []mesh.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[webrtc.RTPCodecType]webrtc.TrackLocal, len(tracks))
	for _, tr := range tracks {
		lt, ok := tr.(LocalTrack)
		if !ok {
			return fmt.Errorf("unsupported track type %T", tr)
		}
		next[lt.Track.Kind()] = lt.Track
	}

	var errs []error
	for kind, sender := range c.senders {
		if err := sender.ReplaceTrack(next[kind]); err != nil {
			errs = append(errs, fmt.Errorf("replace %s track: %w", kind, err))
		}
		delete(next, kind)
	}
	if c.attached {
		for kind := range next {
			// без повторной негоциации новый sender не добавить
			c.log.Debug("pionrtc: no sender for track kind, ignoring", "kind", kind.String())
		}
	} else {
		c.opts.LocalTracks = tracks
	}
	return errors.Join(errs...)
}

func (c *conn) Destroy() error {
	var err error
	c.once.Do(func() { err = c.pc.Close() })
	return err
}

func mapState(s webrtc.PeerConnectionState) mesh.ConnState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return mesh.StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return mesh.StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return mesh.StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return mesh.StateFailed
	case webrtc.PeerConnectionStateClosed:
		return mesh.StateClosed
	default:
		return mesh.StateNew
	}
}
