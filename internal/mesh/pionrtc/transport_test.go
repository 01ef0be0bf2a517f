package pionrtc

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/mesh"

	"github.com/pion/webrtc/v4"
)

type signals struct {
	mu  sync.Mutex
	got []mesh.Signal
}

func (s *signals) add(sig mesh.Signal) {
	s.mu.Lock()
	s.got = append(s.got, sig)
	s.mu.Unlock()
}

func (s *signals) first(k mesh.SignalKind) (mesh.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range s.got {
		if sig.Kind == k {
			return sig, true
		}
	}
	return mesh.Signal{}, false
}

func newTransport(t *testing.T) *Transport {
	t.Helper()
	tr, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func open(t *testing.T, tr *Transport, peer domain.MemberID, initiator bool, tracks ...mesh.Track) (mesh.Connection, *signals) {
	t.Helper()
	out := &signals{}
	c, err := tr.CreateConnection(mesh.ConnectionOptions{
		Peer:        peer,
		Initiator:   initiator,
		LocalTracks: tracks,
		OnSignal:    out.add,
	})
	if err != nil {
		t.Fatalf("CreateConnection: %v", err)
	}
	t.Cleanup(func() { _ = c.Destroy() })
	return c, out
}

func TestOfferAnswerExchange(t *testing.T) {
	tr := newTransport(t)
	mic, err := NewLocalTrack("audio", "mic", "me")
	if err != nil {
		t.Fatalf("NewLocalTrack: %v", err)
	}

	offerer, offSignals := open(t, tr, "a", true, mic)
	offer, ok := offSignals.first(mesh.KindOffer)
	if !ok {
		t.Fatal("initiator produced no offer")
	}
	if !strings.Contains(offer.SDP, "m=audio") || !strings.Contains(offer.SDP, "m=video") {
		t.Fatalf("offer must carry audio and a recv-only video section:\n%s", offer.SDP)
	}

	answerer, ansSignals := open(t, tr, "b", false)
	if _, ok := ansSignals.first(mesh.KindOffer); ok {
		t.Fatal("answerer must not offer")
	}
	if err := answerer.ApplySignal(offer); err != nil {
		t.Fatalf("apply offer: %v", err)
	}
	answer, ok := ansSignals.first(mesh.KindAnswer)
	if !ok {
		t.Fatal("answerer produced no answer")
	}
	if err := offerer.ApplySignal(answer); err != nil {
		t.Fatalf("apply answer: %v", err)
	}

	// второй answer уже не к месту
	if err := offerer.ApplySignal(answer); !errors.Is(err, domain.ErrStale) {
		t.Fatalf("repeated answer: err = %v", err)
	}
}

func TestCandidateBeforeRemoteDescriptionIsTransient(t *testing.T) {
	tr := newTransport(t)
	c, _ := open(t, tr, "a", false)
	err := c.ApplySignal(mesh.Signal{Kind: mesh.KindCandidate, Candidate: &mesh.Candidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"}})
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("err = %v", err)
	}
}

func TestAnswerWithoutOfferIsStale(t *testing.T) {
	tr := newTransport(t)
	c, _ := open(t, tr, "a", false)
	err := c.ApplySignal(mesh.Signal{Kind: mesh.KindAnswer, SDP: "v=0"})
	if !errors.Is(err, domain.ErrStale) {
		t.Fatalf("err = %v", err)
	}
}

func TestSetLocalTracksAndDestroy(t *testing.T) {
	tr := newTransport(t)
	mic, _ := NewLocalTrack("audio", "mic", "me")
	mic2, _ := NewLocalTrack("audio", "mic-2", "me")

	c, _ := open(t, tr, "a", true, mic)
	if err := c.SetLocalTracks([]mesh.Track{mic2}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := c.SetLocalTracks(nil); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if err := c.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := c.Destroy(); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}
}

func TestNewLocalTrack_UnknownKind(t *testing.T) {
	if _, err := NewLocalTrack("screen", "s", "me"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestLoggerFactory(t *testing.T) {
	var buf bytes.Buffer
	f := LoggerFactory{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	l := f.NewLogger("ice")
	l.Infof("gathered %d candidates", 3)
	l.Tracef("hidden %s", "below debug")

	out := buf.String()
	if !strings.Contains(out, "gathered 3 candidates") || !strings.Contains(out, "pion=ice") {
		t.Fatalf("log output = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatal("trace must stay below debug")
	}
}

func TestMapState(t *testing.T) {
	tests := map[webrtc.PeerConnectionState]mesh.ConnState{
		webrtc.PeerConnectionStateNew:          mesh.StateNew,
		webrtc.PeerConnectionStateConnecting:   mesh.StateConnecting,
		webrtc.PeerConnectionStateConnected:    mesh.StateConnected,
		webrtc.PeerConnectionStateDisconnected: mesh.StateDisconnected,
		webrtc.PeerConnectionStateFailed:       mesh.StateFailed,
		webrtc.PeerConnectionStateClosed:       mesh.StateClosed,
	}
	for in, want := range tests {
		if got := mapState(in); got != want {
			t.Fatalf("mapState(%s) = %s, want %s", in, got, want)
		}
	}
}
