package mesh

import (
	"fmt"

	"github.com/cwrk-planet/huddle-service/internal/domain"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type SignalKind string

const (
	KindOffer     SignalKind = "offer"
	KindAnswer    SignalKind = "answer"
	KindCandidate SignalKind = "candidate"
)

// Candidate mirrors RTCIceCandidateInit.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Signal is one negotiation step as carried in an envelope payload.
type Signal struct {
	Kind      SignalKind `json:"kind"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
}

func (s Signal) Validate() error {
	switch s.Kind {
	case KindOffer, KindAnswer:
		if s.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", domain.ErrInvalid, s.Kind)
		}
	case KindCandidate:
		if s.Candidate == nil {
			return fmt.Errorf("%w: candidate without body", domain.ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: signal kind %q", domain.ErrInvalid, s.Kind)
	}
	return nil
}

func EncodeSignal(s Signal) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

func DecodeSignal(b []byte) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(b, &s); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	return s, s.Validate()
}

// IsInitiator reports whether self creates the offer towards peer: the
// greater member id initiates, so both sides agree without a round trip.
func IsInitiator(self, peer domain.MemberID) bool {
	return self > peer
}
