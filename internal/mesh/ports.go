// Package mesh keeps one peer connection per other active participant of a
// huddle and moves negotiation payloads between those connections and the
// signal relay.
package mesh

import (
	"context"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
)

type ConnState string

const (
	StateNew          ConnState = "new"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateFailed       ConnState = "failed"
	StateClosed       ConnState = "closed"
)

// Track is a local or remote media track as the transport exposes it.
type Track interface {
	ID() string
	Kind() string
}

type ConnectionOptions struct {
	Peer      domain.MemberID
	Initiator bool
	// LocalTracks are attached before the first offer or answer.
	LocalTracks []Track

	// Callbacks may run on transport goroutines, or synchronously from
	// CreateConnection and ApplySignal.
	OnSignal      func(Signal)
	OnRemoteTrack func(Track)
	OnStateChange func(ConnState)
}

// Transport is the media layer the orchestrator drives.
type Transport interface {
	CreateConnection(opts ConnectionOptions) (Connection, error)
}

type Connection interface {
	// ApplySignal returns an error wrapping domain.ErrTransient when the
	// signal arrived too early and should be offered again later.
	ApplySignal(s Signal) error
	// SetLocalTracks swaps outbound media in place.
	SetLocalTracks(tracks []Track) error
	// Destroy is idempotent.
	Destroy() error
}

// Relay is the signal mailbox seen from the local participant; the sender
// is implied by the caller's identity.
type Relay interface {
	Send(ctx context.Context, id domain.SessionID, to domain.MemberID, payload []byte) error
	Receive(ctx context.Context, id domain.SessionID, maxAge time.Duration) ([]domain.SignalEnvelope, error)
	Purge(ctx context.Context, id domain.SessionID, olderThan time.Duration) error
}

// Roster lists the active participants of a huddle.
type Roster interface {
	ListParticipants(ctx context.Context, id domain.SessionID) ([]domain.Participant, error)
}
